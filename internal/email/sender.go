package email

import (
	"context"
	"fmt"
	"log"
	"net/smtp"

	"realty/site/internal/config"
	"realty/site/internal/metrics"
)

// Sender defines the interface for sending emails.
// rawMessage contains the full message, headers and body, as produced by BuildMessage.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// NewSender picks the sender for cfg.EmailProvider. Without a usable provider
// configuration it falls back to logging so inquiries are never blocked on email.
func NewSender(cfg *config.Config) Sender {
	switch cfg.EmailProvider {
	case "resend":
		if cfg.ResendAPIKey == "" {
			log.Println("RESEND_API_KEY not configured, using logging email sender.")
			return &LoggingSender{cfg: cfg}
		}
		return NewResendSender(cfg)
	default:
		return NewSMTPSender(cfg)
	}
}

// SMTPSender implements the Sender interface using Go's net/smtp package.
type SMTPSender struct {
	cfg  *config.Config
	auth smtp.Auth
	addr string
}

// NewSMTPSender creates a new SMTPSender, or a LoggingSender when no SMTP host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		log.Println("SMTP host not configured, using logging email sender.")
		return &LoggingSender{cfg: cfg}
	}

	auth := smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost)
	addr := fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort)

	return &SMTPSender{
		cfg:  cfg,
		auth: auth,
		addr: addr,
	}
}

// Send sends an email using SMTP.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	err := smtp.SendMail(s.addr, s.auth, s.cfg.SmtpFromAddress, to, rawMessage)
	metrics.EmailsSent.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		log.Printf("Failed to send email via SMTP to %v: %v", to, err)
		return fmt.Errorf("smtp error: %w", err)
	}
	log.Printf("Email sent successfully via SMTP to %v (Subject: %s)", to, subject)
	return nil
}

// LoggingSender just logs email details.
// Useful for development or when no provider is configured.
type LoggingSender struct {
	cfg *config.Config
}

// NewLoggingSender creates a LoggingSender.
func NewLoggingSender(cfg *config.Config) Sender {
	return &LoggingSender{cfg: cfg}
}

// Send logs the email details instead of sending.
func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	log.Printf("--- Sending Email (Logged) ---")
	log.Printf("To: %v", to)
	log.Printf("Configured From: %s", s.cfg.SmtpFromAddress)
	log.Printf("Subject: %s", subject)
	log.Println("--- Raw Message ---")
	log.Println(string(rawMessage))
	log.Println("--- End Email ---")
	return nil
}
