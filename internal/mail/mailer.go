package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"budgetbuddy/logging"
)

// Mailer delivers a single HTML email. Delivery is best-effort everywhere it
// is used: callers log a failure and carry on with the primary operation.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, html string) error
}

// NewFromEnv picks an SMTP mailer when SMTP_HOST is configured, otherwise a
// disabled one that reports every send as undeliverable.
func NewFromEnv() Mailer {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		logging.Logger.Warn("SMTP_HOST not set, outbound email disabled")
		return Disabled{}
	}

	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}

	fromEmail := os.Getenv("FROM_EMAIL")
	if fromEmail == "" {
		fromEmail = "noreply@example.com"
	}
	fromName := os.Getenv("FROM_NAME")
	if fromName == "" {
		fromName = "Budget Buddy"
	}

	return &SMTPMailer{
		host:      host,
		addr:      host + ":" + port,
		username:  os.Getenv("SMTP_USER"),
		password:  os.Getenv("SMTP_PASS"),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

type SMTPMailer struct {
	host      string
	addr      string
	username  string
	password  string
	fromEmail string
	fromName  string
}

func (m *SMTPMailer) Send(ctx context.Context, to string, subject string, html string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.fromName, m.fromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(html)

	var a smtp.Auth
	if m.username != "" {
		a = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := smtp.SendMail(m.addr, a, m.fromEmail, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", to, err)
	}
	return nil
}

// Disabled satisfies Mailer when no SMTP server is configured.
type Disabled struct{}

func (Disabled) Send(ctx context.Context, to string, subject string, html string) error {
	return fmt.Errorf("email not sent (SMTP not configured)")
}
