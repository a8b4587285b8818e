package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedTags は許可タグが正しく通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewEmailSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"段落", "<p>本文</p>", []string{"<p>本文</p>"}},
		{"見出し", "<h2>速報</h2>", []string{"<h2>速報</h2>"}},
		{"リスト", "<ul><li>項目1</li></ul>", []string{"<ul>", "<li>項目1</li>", "</ul>"}},
		{"強調", "<strong>太字</strong><em>斜体</em>", []string{"<strong>太字</strong>", "<em>斜体</em>"}},
		{"引用", "<blockquote>引用</blockquote>", []string{"<blockquote>引用</blockquote>"}},
		{"コード", "<pre><code>x := 1</code></pre>", []string{"<pre><code>x := 1</code></pre>"}},
		{"リンク", `<a href="https://example.com/a">記事</a>`, []string{`href="https://example.com/a"`, "noopener", "noreferrer", "記事"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_ForbiddenContent は危険な要素と外部画像が除去されることを検証する。
func TestSanitize_ForbiddenContent(t *testing.T) {
	sanitizer := NewEmailSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
		wantKept   string
	}{
		{"script", `<p>安全</p><script>alert(1)</script>`, []string{"<script", "alert"}, "安全"},
		{"iframe", `<p>安全</p><iframe src="https://evil.example"></iframe>`, []string{"<iframe", "evil.example"}, "安全"},
		{"img", `<p>安全</p><img src="https://tracker.example/p.gif">`, []string{"<img", "tracker.example"}, "安全"},
		{"onclick", `<p onclick="steal()">安全</p>`, []string{"onclick", "steal"}, "安全"},
		{"javascript href", `<a href="javascript:alert(1)">安全</a>`, []string{"javascript:"}, "安全"},
		{"相対URL", `<a href="/admin">安全</a>`, []string{`href="/admin"`}, "安全"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.input, got, absent)
				}
			}
			if !strings.Contains(got, tt.wantKept) {
				t.Errorf("Sanitize(%q) = %q, should keep %q", tt.input, got, tt.wantKept)
			}
		})
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	if got := NewEmailSanitizer().Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

// TestSanitize_Idempotent は同一入力に対して同一出力となることを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewEmailSanitizer()
	input := `<p>本文 <a href="https://example.com">リンク</a></p><script>x()</script>`
	first := sanitizer.Sanitize(input)
	if second := sanitizer.Sanitize(first); second != first {
		t.Errorf("Sanitize is not idempotent:\nfirst:  %q\nsecond: %q", first, second)
	}
}

// TestStripTags はタグを除去したプレーンテキストになることを検証する。
func TestStripTags(t *testing.T) {
	sanitizer := NewEmailSanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"<p>Hello <strong>world</strong></p>", "Hello world"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"line1\n\n   line2", "line1 line2"},
		{"<script>alert(1)</script>plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizer.StripTags(tt.input); got != tt.want {
			t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestHTMLSanitizerInterface(t *testing.T) {
	var _ HTMLSanitizer = NewEmailSanitizer()
}
