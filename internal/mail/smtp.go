// Package mail はSMTPによる通知メール送信を提供する。
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"github.com/hitoshi/newsdesk/internal/notify"
)

const defaultTimeout = 10 * time.Second

// Config はSMTP送信の設定。
type Config struct {
	Host     string
	Port     int
	Username string // 空なら認証しない
	Password string
	From     string
}

// SMTPSender はnotify.EmailSenderのSMTP実装。
// 宛先1件につき1接続で送信する。STARTTLSはサーバーが対応していれば使う。
type SMTPSender struct {
	cfg     Config
	timeout time.Duration
	now     func() time.Time
}

var _ notify.EmailSender = (*SMTPSender)(nil)

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{
		cfg:     cfg,
		timeout: defaultTimeout,
		now:     time.Now,
	}
}

// Send は1通のメールを送信する。ctxの期限は接続全体に適用される。
func (s *SMTPSender) Send(ctx context.Context, to, subject string, body notify.Body) error {
	msg, err := s.buildMessage(to, subject, body)
	if err != nil {
		return err
	}

	client, err := s.newClient()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

func (s *SMTPSender) newClient() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client, nil
}

// buildMessage はtext/plainとtext/htmlを持つmultipart/alternativeのメッセージを組み立てる。
// HTMLが空ならtext/plainのみのメッセージになる。
func (s *SMTPSender) buildMessage(to, subject string, body notify.Body) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", s.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(s.now())
	msg.SetMessageIDWithValue(uuid.NewString() + "@" + s.cfg.Host)

	msg.SetBodyString(gomail.TypeTextPlain, body.Text)
	if body.HTML != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, body.HTML)
	}
	return msg, nil
}
