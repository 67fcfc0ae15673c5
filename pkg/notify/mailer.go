package notify

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"
)

// SMTPConfig carries the dialer settings for outbound mail.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	SkipTLSVerify bool
}

// Mailer delivers notification emails over SMTP with mandatory STARTTLS.
type Mailer struct {
	cfg SMTPConfig
}

// NewMailer constructs a mailer. Delivery fails until Host and From are set;
// the caller decides whether that is an error or a silently disabled feature.
func NewMailer(cfg SMTPConfig) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg}
}

// Send delivers a single message. Errors are returned to the caller for
// logging; the ledger never blocks on them.
func (m *Mailer) Send(to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("recipient required")
	}
	if m.cfg.Host == "" || m.cfg.From == "" {
		return fmt.Errorf("smtp not configured")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := mail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	dialer.StartTLSPolicy = mail.MandatoryStartTLS
	dialer.TLSConfig = &tls.Config{
		ServerName:         m.cfg.Host,
		InsecureSkipVerify: m.cfg.SkipTLSVerify,
	}

	return dialer.DialAndSend(msg)
}
