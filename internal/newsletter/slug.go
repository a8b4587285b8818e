package newsletter

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/hitoshi/newsdesk/internal/model"
)

// fallbackSlug はタイトルからASCIIの文字が1つも残らない場合のスラッグ。
const fallbackSlug = "newsletter"

// slugify はタイトルをURL用のスラッグに変換する。
// NFKD分解した後、ASCIIの英数字とアンダースコアだけを残し、
// 空白とハイフンの連続を1つのハイフンにまとめる。
func slugify(title string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range norm.NFKD.String(strings.ToLower(title)) {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		}
	}

	slug := strings.Trim(b.String(), "-_")
	// 連番の接尾辞を付けても上限に収まるよう切り詰める
	if limit := model.MaxSlugLength - 10; len(slug) > limit {
		slug = strings.TrimRight(slug[:limit], "-_")
	}
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// candidateSlug はn番目の候補スラッグを返す。0番目は接尾辞なし。
func candidateSlug(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
