package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"automation-platform/internal/config"

	"github.com/google/uuid"
)

// SMTPSender delivers mail over plain SMTP. No mail library is carried for
// this; the surface needed here is one MAIL/RCPT/DATA exchange.
type SMTPSender struct {
	cfg config.SMTPConfig

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	if msg.To == "" || msg.Subject == "" {
		return SendResult{}, ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	id := uuid.NewString()
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-Id: <%s@%s>\r\n", id, s.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	if err := s.send(s.cfg.Addr(), auth, s.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return SendResult{}, fmt.Errorf("notify: smtp send: %w", err)
	}
	return SendResult{Success: true, MessageID: id}, nil
}
