package fulfillment

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPMailer delivers ticket artifacts over plain SMTP with AUTH.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.FromEmail == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.FromName == "" {
		cfg.FromName = "Seatwise"
	}

	return &SMTPMailer{cfg: cfg}, nil
}

func (m *SMTPMailer) Deliver(ctx context.Context, recipient string, artifact string, meta map[string]string) error {
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.FromEmail)
	fmt.Fprintf(&body, "To: %s\r\n", recipient)
	fmt.Fprintf(&body, "Subject: Your ticket %s\r\n", meta["unit"])
	body.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&body, "Your ticket is ready: %s\r\n", artifact)
	if qr := meta["qr"]; qr != "" {
		fmt.Fprintf(&body, "\r\nQR payload:\r\n%s\r\n", qr)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{recipient}, []byte(body.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	return nil
}
