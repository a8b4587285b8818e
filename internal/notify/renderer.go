package notify

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/hitoshi/newsdesk/internal/security"
)

// socialSummaryRunes はソーシャル投稿に載せる要約の最大文字数。
const socialSummaryRunes = 100

// Announcement は承認された記事の告知内容。
// 記事ライフサイクルが承認時点の値で組み立て、ディスパッチャへ渡す。
type Announcement struct {
	ArticleID     string
	Title         string
	Summary       string // Markdownまたは素のテキスト
	AuthorName    string
	PublisherName string // 空文字は独立記事
}

// Independent は発行元を持たない独立記事の告知かを返す。
func (a Announcement) Independent() bool {
	return a.PublisherName == ""
}

// Body はメール本文。Textは必須、HTMLは代替パート。
type Body struct {
	Text string
	HTML string
}

// MessageRenderer は告知からメール本文とソーシャル投稿文を生成する。
// 要約はMarkdownとしてHTMLに変換し、sanitizerで許可リスト外の要素を除去する。
type MessageRenderer struct {
	baseURL   string
	md        goldmark.Markdown
	sanitizer security.HTMLSanitizer
}

// NewMessageRenderer はMessageRendererを生成する。
// baseURLは記事リンクの生成に使う公開URL（末尾のスラッシュは無視する）。
func NewMessageRenderer(baseURL string, sanitizer security.HTMLSanitizer) *MessageRenderer {
	return &MessageRenderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				gmhtml.WithHardWraps(),
				// 生HTMLはsanitizerで処理するため変換段階では残す
				gmhtml.WithUnsafe(),
			),
		),
		sanitizer: sanitizer,
	}
}

// ArticleURL は記事の公開URLを返す。
func (r *MessageRenderer) ArticleURL(articleID string) string {
	return r.baseURL + "/articles/" + articleID
}

// Subject はメール件名を返す。
func (r *MessageRenderer) Subject(a Announcement) string {
	return "New Article Published: " + a.Title
}

func sourceInfo(a Announcement) string {
	if a.Independent() {
		return "as an independent article"
	}
	return "from " + a.PublisherName
}

func subscribedTo(a Announcement) string {
	if a.Independent() {
		return a.AuthorName
	}
	return a.PublisherName
}

// EmailBody は受信者ごとのメール本文を生成する。
func (r *MessageRenderer) EmailBody(a Announcement, recipientName string) (Body, error) {
	summary := r.sanitizer.StripTags(a.Summary)
	link := r.ArticleURL(a.ArticleID)

	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n", recipientName)
	fmt.Fprintf(&text, "A new article has been published by %s %s.\n\n", a.AuthorName, sourceInfo(a))
	fmt.Fprintf(&text, "Title: %s\n", a.Title)
	fmt.Fprintf(&text, "Summary: %s\n\n", summary)
	fmt.Fprintf(&text, "Read the full article here: %s\n\n", link)
	text.WriteString("---\n")
	fmt.Fprintf(&text, "You received this email because you are subscribed to %s.\n", subscribedTo(a))
	text.WriteString("To manage your subscriptions, log in to your account.\n")

	var summaryHTML bytes.Buffer
	if err := r.md.Convert([]byte(a.Summary), &summaryHTML); err != nil {
		return Body{}, fmt.Errorf("failed to render summary markdown: %w", err)
	}

	var h strings.Builder
	fmt.Fprintf(&h, "<p>Hello %s,</p>\n", escape(recipientName))
	fmt.Fprintf(&h, "<p>A new article has been published by %s %s.</p>\n", escape(a.AuthorName), escape(sourceInfo(a)))
	fmt.Fprintf(&h, "<h2>%s</h2>\n", escape(a.Title))
	h.WriteString(summaryHTML.String())
	fmt.Fprintf(&h, "<p><a href=\"%s\">Read the full article</a></p>\n", escape(link))
	h.WriteString("<hr>\n")
	fmt.Fprintf(&h, "<p>You received this email because you are subscribed to %s.<br>To manage your subscriptions, log in to your account.</p>\n",
		escape(subscribedTo(a)))

	return Body{
		Text: text.String(),
		HTML: r.sanitizer.Sanitize(h.String()),
	}, nil
}

// PostText はソーシャル告知の投稿文を生成する。
// 要約は先頭100文字に切り詰め、切り詰めた場合だけ省略記号を付ける。
func (r *MessageRenderer) PostText(a Announcement) string {
	runes := []rune(r.sanitizer.StripTags(a.Summary))
	summary := string(runes)
	if len(runes) > socialSummaryRunes {
		summary = string(runes[:socialSummaryRunes]) + "..."
	}

	var hashtags string
	if a.Independent() {
		hashtags = "#IndependentJournalism #News"
	} else {
		hashtags = "#" + strings.Join(strings.Fields(a.PublisherName), "") + " #News"
	}

	return fmt.Sprintf("📰 New Article Published!\n\n%s\n\n%s\n\nRead more: %s\n\n%s",
		a.Title, summary, r.ArticleURL(a.ArticleID), hashtags)
}

func escape(s string) string {
	return html.EscapeString(s)
}
