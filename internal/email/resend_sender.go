package email

import (
	"context"
	"fmt"
	"log"

	"github.com/resend/resend-go/v3"

	"realty/site/internal/config"
	"realty/site/internal/metrics"
)

// ResendSender delivers mail through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a ResendSender from cfg.ResendAPIKey.
func NewResendSender(cfg *config.Config) Sender {
	return &ResendSender{
		client: resend.NewClient(cfg.ResendAPIKey),
		from:   cfg.SmtpFromAddress,
	}
}

// Send posts the message body to Resend. Resend builds its own headers, so only
// the body part of rawMessage is sent.
func (s *ResendSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      to,
		Subject: subject,
		Text:    MessageBody(rawMessage),
	}
	sent, err := s.client.Emails.SendWithContext(ctx, params)
	metrics.EmailsSent.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		log.Printf("Failed to send email via Resend to %v: %v", to, err)
		return fmt.Errorf("resend error: %w", err)
	}
	log.Printf("Email sent successfully via Resend to %v (Subject: %s, ID: %s)", to, subject, sent.Id)
	return nil
}
