package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
)

// SMTPConfig configures the SMTP email transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPTransport sends notification emails over SMTP. No third-party mail
// library appears anywhere in the retrieved pack, so this is built directly
// on the standard library's net/smtp, which is sufficient for a single
// plain-auth submission per call.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport builds an SMTPTransport.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Send delivers one email. Network and transient server errors are wrapped
// as RetryableError so the delivery worker backs off instead of failing
// the notification outright; permanent (5xx) SMTP replies are returned
// unwrapped so the notification fails without a retry.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.Port))
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", t.cfg.From, to, subject, body)

	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, t.cfg.From, []string{to}, []byte(msg)); err != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var replyErr *textproto.Error
		if errors.As(err, &replyErr) && replyErr.Code >= 500 {
			return err
		}
		return &RetryableError{Err: err}
	}
	return nil
}
