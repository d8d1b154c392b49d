package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"realty/site/internal/config"
)

// Mail kinds used in mock email keys.
const (
	KindInquiryNotify = "inquiry_notify"
	KindInquiryAck    = "inquiry_ack"
	KindUnknown       = "unknown"
)

// MockEmailTTL is how long a mock email stays readable through the service API.
const MockEmailTTL = 5 * time.Minute

// MockEmailKey is the Redis key a RedisSender stores a mail under.
func MockEmailKey(to, kind string) string {
	return fmt.Sprintf("mockemail:%s:%s", to, kind)
}

// RedisSender stores emails in Redis so end-to-end tests can read them back.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// mailKind guesses the kind of mail from its subject.
func mailKind(subject string) string {
	switch {
	case strings.HasPrefix(subject, "New inquiry"):
		return KindInquiryNotify
	case strings.Contains(subject, "Thank you for your inquiry"):
		return KindInquiryAck
	default:
		return KindUnknown
	}
}

// Send stores a JSON representation of the email, one key per recipient.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := mailKind(subject)
	emailData := map[string]interface{}{
		"to":       strings.Join(to, ", "),
		"from":     s.cfg.SmtpFromAddress,
		"subject":  subject,
		"body":     MessageBody(rawMessage),
		"sent_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"mailKind": kind,
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	for _, recipient := range to {
		key := MockEmailKey(recipient, kind)
		if err := s.client.Set(ctx, key, jsonData, MockEmailTTL).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
		log.Printf("Mock email stored in Redis key '%s' (TTL: %v, Subject: %s)", key, MockEmailTTL, subject)
	}
	return nil
}
