package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// Mailer delivers plain-text mail over SMTP. With an empty address the
// message is logged instead of sent, which keeps local development and
// tests mail-free.
type Mailer struct {
	addr   string
	from   string
	logger *slog.Logger
}

// NewMailer constructs a Mailer. addr is host:port of the SMTP relay.
func NewMailer(addr, from string, logger *slog.Logger) *Mailer {
	return &Mailer{addr: addr, from: from, logger: logger}
}

// Send delivers one message to a single recipient.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.addr == "" {
		m.logger.Info("mail delivery skipped, no smtp relay configured",
			slog.String("to", to), slog.String("subject", subject))
		return nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		m.from, to, subject, body)
	return smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg))
}
