package mail

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net"
	netmail "net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/newsdesk/internal/notify"
)

// fakeSMTPServer は最小限のSMTP会話を行うテスト用サーバー。
type fakeSMTPServer struct {
	ln   net.Listener
	mu   sync.Mutex
	from string
	rcpt []string
	data string
	done chan struct{}
}

func newFakeSMTPServer(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	s := &fakeSMTPServer{ln: ln, done: make(chan struct{})}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	write := func(line string) { io.WriteString(conn, line+"\r\n") }
	write("220 localhost ESMTP test")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			write("250-localhost")
			write("250 8BITMIME")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			s.mu.Lock()
			s.from = angleAddr(cmd)
			s.mu.Unlock()
			write("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, angleAddr(cmd))
			s.mu.Unlock()
			write("250 OK")
		case upper == "DATA":
			write("354 End data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(strings.TrimPrefix(l, "."))
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			write("250 OK")
		case upper == "QUIT":
			write("221 Bye")
			return
		default:
			write("250 OK")
		}
	}
}

// angleAddr はMAIL FROM/RCPT TOの<>内のアドレスを取り出す。BODY=8BITMIMEなどの引数は無視する。
func angleAddr(cmd string) string {
	start := strings.IndexByte(cmd, '<')
	end := strings.IndexByte(cmd, '>')
	if start < 0 || end < start {
		return ""
	}
	return cmd[start+1 : end]
}

// render はメッセージをRFC 5322形式で書き出して読み直す。
func render(t *testing.T, sender *SMTPSender, to, subject string, body notify.Body) *netmail.Message {
	t.Helper()
	msg, err := sender.buildMessage(to, subject, body)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	parsed, err := netmail.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return parsed
}

func newTestSender(port int) *SMTPSender {
	s := NewSMTPSender(Config{Host: "127.0.0.1", Port: port, From: "news@example.com"})
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

// TestSMTPSender_Send は送信者・宛先・本文がSMTPサーバーに届くことを検証する。
func TestSMTPSender_Send(t *testing.T) {
	srv := newFakeSMTPServer(t)
	sender := newTestSender(srv.port())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body := notify.Body{Text: "Hello alice,\nA new article is out.", HTML: "<p>Hello alice</p>"}
	if err := sender.Send(ctx, "alice@example.com", "New Article Published: Rates", body); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	<-srv.done

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.from != "news@example.com" {
		t.Errorf("MAIL FROM = %q", srv.from)
	}
	if len(srv.rcpt) != 1 || srv.rcpt[0] != "alice@example.com" {
		t.Errorf("RCPT TO = %v", srv.rcpt)
	}

	msg, err := netmail.ReadMessage(strings.NewReader(srv.data))
	if err != nil {
		t.Fatalf("failed to parse delivered message: %v", err)
	}
	if got := msg.Header.Get("Subject"); got != "New Article Published: Rates" {
		t.Errorf("Subject = %q", got)
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/alternative" {
		t.Fatalf("Content-Type = %q, err=%v", msg.Header.Get("Content-Type"), err)
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var types []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		content, _ := io.ReadAll(p)
		types = append(types, p.Header.Get("Content-Type"))
		if strings.HasPrefix(p.Header.Get("Content-Type"), "text/plain") &&
			!strings.Contains(string(content), "A new article is out.") {
			t.Errorf("text part = %q", content)
		}
	}
	if len(types) != 2 {
		t.Errorf("parts = %v, want text and html", types)
	}
}

// TestSMTPSender_Send_InvalidRecipient は不正な宛先を接続前に拒否することを検証する。
func TestSMTPSender_Send_InvalidRecipient(t *testing.T) {
	sender := newTestSender(1)
	err := sender.Send(context.Background(), "not an address", "s", notify.Body{Text: "x"})
	if err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

// TestSMTPSender_Send_ConnectionRefused は接続失敗をエラーとして返すことを検証する。
func TestSMTPSender_Send_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	sender := newTestSender(port)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sender.Send(ctx, "alice@example.com", "s", notify.Body{Text: "x"}); err == nil {
		t.Fatal("expected connection error")
	}
}

// TestSMTPSender_BuildMessage_EncodesNonASCIISubject は非ASCIIの件名をエンコードすることを検証する。
func TestSMTPSender_BuildMessage_EncodesNonASCIISubject(t *testing.T) {
	sender := newTestSender(25)
	msg := render(t, sender, "bob@example.com", "New Article Published: 金利上昇", notify.Body{Text: "x"})
	rawSubject := msg.Header.Get("Subject")
	if !strings.HasPrefix(strings.ToLower(rawSubject), "=?utf-8?") {
		t.Errorf("Subject not encoded: %q", rawSubject)
	}
	got, err := new(mime.WordDecoder).DecodeHeader(rawSubject)
	if err != nil || got != "New Article Published: 金利上昇" {
		t.Errorf("decoded Subject = %q, err=%v", got, err)
	}
}

// TestSMTPSender_BuildMessage_TextOnly はHTMLなしの場合にtext/plain単体になることを検証する。
func TestSMTPSender_BuildMessage_TextOnly(t *testing.T) {
	sender := newTestSender(25)
	msg := render(t, sender, "bob@example.com", "Hi", notify.Body{Text: "plain body"})
	if ct := msg.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := msg.Header.Get("Date"); got != "Fri, 02 Jan 2026 03:04:05 +0000" {
		t.Errorf("Date = %q", got)
	}
	if !strings.HasSuffix(msg.Header.Get("Message-ID"), "@127.0.0.1>") {
		t.Errorf("Message-ID = %q", msg.Header.Get("Message-ID"))
	}
	body, _ := io.ReadAll(msg.Body)
	if !strings.Contains(string(body), "plain body") {
		t.Errorf("body = %q", body)
	}
}
