package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"authlog-service/internal/config"
)

// MailSender delivers alerts over SMTP. Plain-auth is used when credentials
// are configured; otherwise the relay is assumed to accept unauthenticated
// local mail.
type MailSender struct {
	config config.MailChannelConfig
}

func NewMailSender(cfg config.MailChannelConfig) *MailSender {
	return &MailSender{config: cfg}
}

func (m *MailSender) Name() string { return "mail" }

func (m *MailSender) Send(ctx context.Context, recipient string, payload Payload) error {
	if recipient == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	msg := m.buildMessage(recipient, payload)
	if err := smtp.SendMail(addr, auth, m.config.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", redactEmail(recipient), err)
	}
	return nil
}

func (m *MailSender) buildMessage(recipient string, payload Payload) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.config.From + "\r\n")
	b.WriteString("To: " + recipient + "\r\n")
	b.WriteString("Subject: " + payload.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(formatBody(payload), "\n", "\r\n"))
	return []byte(b.String())
}

// redactEmail keeps error messages useful without logging full addresses.
func redactEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
