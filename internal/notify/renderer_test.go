package notify

import (
	"strings"
	"testing"

	"github.com/hitoshi/newsdesk/internal/security"
)

func newTestRenderer() *MessageRenderer {
	return NewMessageRenderer("https://news.example.com/", security.NewEmailSanitizer())
}

func TestMessageRenderer_ArticleURL(t *testing.T) {
	r := newTestRenderer()
	if got := r.ArticleURL("a1"); got != "https://news.example.com/articles/a1" {
		t.Errorf("ArticleURL = %q", got)
	}
}

func TestMessageRenderer_Subject(t *testing.T) {
	r := newTestRenderer()
	if got := r.Subject(Announcement{Title: "Rates rise"}); got != "New Article Published: Rates rise" {
		t.Errorf("Subject = %q", got)
	}
}

// TestMessageRenderer_EmailBody_Publisher は発行元記事のメール本文を検証する。
func TestMessageRenderer_EmailBody_Publisher(t *testing.T) {
	r := newTestRenderer()
	a := Announcement{
		ArticleID:     "a1",
		Title:         "Rates rise",
		Summary:       "The **central bank** raised rates.",
		AuthorName:    "lois",
		PublisherName: "Daily Planet",
	}

	body, err := r.EmailBody(a, "clark")
	if err != nil {
		t.Fatalf("EmailBody returned error: %v", err)
	}

	wantText := []string{
		"Hello clark,",
		"A new article has been published by lois from Daily Planet.",
		"Title: Rates rise",
		"Summary: The **central bank** raised rates.",
		"Read the full article here: https://news.example.com/articles/a1",
		"You received this email because you are subscribed to Daily Planet.",
		"To manage your subscriptions, log in to your account.",
	}
	for _, want := range wantText {
		if !strings.Contains(body.Text, want) {
			t.Errorf("Text missing %q\n%s", want, body.Text)
		}
	}

	wantHTML := []string{
		"<strong>central bank</strong>",
		`href="https://news.example.com/articles/a1"`,
		"<h2>Rates rise</h2>",
	}
	for _, want := range wantHTML {
		if !strings.Contains(body.HTML, want) {
			t.Errorf("HTML missing %q\n%s", want, body.HTML)
		}
	}
}

// TestMessageRenderer_EmailBody_Independent は独立記事の文面を検証する。
func TestMessageRenderer_EmailBody_Independent(t *testing.T) {
	r := newTestRenderer()
	body, err := r.EmailBody(Announcement{ArticleID: "a2", Title: "T", AuthorName: "jimmy"}, "clark")
	if err != nil {
		t.Fatalf("EmailBody returned error: %v", err)
	}
	if !strings.Contains(body.Text, "by jimmy as an independent article.") {
		t.Errorf("Text should describe independent article:\n%s", body.Text)
	}
	if !strings.Contains(body.Text, "subscribed to jimmy.") {
		t.Errorf("Text should name the journalist as subscription source:\n%s", body.Text)
	}
}

// TestMessageRenderer_EmailBody_SanitizesSummary は要約中の危険なHTMLが除去されることを検証する。
func TestMessageRenderer_EmailBody_SanitizesSummary(t *testing.T) {
	r := newTestRenderer()
	a := Announcement{
		ArticleID:  "a1",
		Title:      `<b onmouseover="x()">T</b>`,
		Summary:    `hello <script>alert(1)</script><img src="https://t.example/p.gif">`,
		AuthorName: "lois",
	}
	body, err := r.EmailBody(a, "clark")
	if err != nil {
		t.Fatalf("EmailBody returned error: %v", err)
	}
	for _, bad := range []string{"<script", "alert(1)", "<img", "<b "} {
		if strings.Contains(body.HTML, bad) {
			t.Errorf("HTML should not contain %q:\n%s", bad, body.HTML)
		}
	}
	if !strings.Contains(body.HTML, "&lt;b") {
		t.Errorf("title markup should be escaped:\n%s", body.HTML)
	}
	if !strings.Contains(body.Text, "Summary: hello\n") {
		t.Errorf("Text summary should be stripped to plain text:\n%s", body.Text)
	}
}

// TestMessageRenderer_PostText は投稿文の構成を検証する。
func TestMessageRenderer_PostText(t *testing.T) {
	r := newTestRenderer()

	got := r.PostText(Announcement{
		ArticleID:     "a1",
		Title:         "Rates rise",
		Summary:       "Short summary",
		PublisherName: "Daily Planet",
	})
	want := "📰 New Article Published!\n\nRates rise\n\nShort summary\n\nRead more: https://news.example.com/articles/a1\n\n#DailyPlanet #News"
	if got != want {
		t.Errorf("PostText =\n%q\nwant\n%q", got, want)
	}

	got = r.PostText(Announcement{ArticleID: "a2", Title: "T"})
	if !strings.HasSuffix(got, "#IndependentJournalism #News") {
		t.Errorf("independent PostText should end with independent hashtags: %q", got)
	}
}

// TestMessageRenderer_PostText_TruncatesByRune は要約が100文字で切り詰められることを検証する。
func TestMessageRenderer_PostText_TruncatesByRune(t *testing.T) {
	r := newTestRenderer()
	summary := strings.Repeat("あ", 150)

	got := r.PostText(Announcement{ArticleID: "a1", Title: "T", Summary: summary})
	want := strings.Repeat("あ", 100) + "..."
	if !strings.Contains(got, "\n\n"+want+"\n\n") {
		t.Errorf("PostText should contain 100-rune summary, got %q", got)
	}
	if strings.Contains(got, strings.Repeat("あ", 101)) {
		t.Error("summary was not truncated")
	}
}

// TestMessageRenderer_PostText_EllipsisOnlyWhenTruncated は100文字以下の要約に省略記号を付けないことを検証する。
func TestMessageRenderer_PostText_EllipsisOnlyWhenTruncated(t *testing.T) {
	r := newTestRenderer()

	exact := strings.Repeat("い", 100)
	got := r.PostText(Announcement{ArticleID: "a1", Title: "T", Summary: exact})
	if !strings.Contains(got, "\n\n"+exact+"\n\n") {
		t.Errorf("100-rune summary should be kept as is, got %q", got)
	}
	if strings.Contains(got, "...") {
		t.Errorf("untruncated summary must not end with an ellipsis: %q", got)
	}
}
