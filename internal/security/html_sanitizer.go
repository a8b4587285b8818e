// Package security は外部へ送り出すデータと通信先の安全性を担保する。
//
// HTMLSanitizer は通知メールに埋め込むHTMLを許可リスト方式で整形する。
// 記事要約は記者が入力した任意のMarkdown/HTMLであるため、
// メールクライアントで実行され得る要素と外部画像の読み込みを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer はHTMLのサニタイズ機能のインターフェース。
type HTMLSanitizer interface {
	// Sanitize はメール本文として安全なHTMLを返す。
	Sanitize(rawHTML string) string
	// StripTags は全てのタグを除去したプレーンテキストを返す。
	// 文字参照はデコードされ、連続する空白は1つにまとめられる。
	StripTags(raw string) string
}

// emailSanitizer はHTMLSanitizerの実装。
// bluemondayのポリシーはスレッドセーフで、ワーカー間で共有できる。
type emailSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewEmailSanitizer はメール本文用のHTMLSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, h1〜h4, hr
//   - 禁止: script, iframe, style, img および全てのon*イベント属性
//   - aタグ: http/httpsの絶対URLのみ、rel="noopener noreferrer" を付与
func NewEmailSanitizer() *emailSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h1", "h2", "h3", "h4", "hr",
	)

	// メールは開封者の環境で描画されるため相対URLは意味を持たない
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &emailSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメール本文として安全なHTMLを返す。
func (s *emailSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// StripTags は全てのタグを除去したプレーンテキストを返す。
func (s *emailSanitizer) StripTags(raw string) string {
	text := html.UnescapeString(s.strict.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}

// compile-time interface check
var _ HTMLSanitizer = (*emailSanitizer)(nil)
