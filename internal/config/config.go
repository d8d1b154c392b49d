package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverMongo     = "mongo"
	StoreDriverFirestore = "firestore"
	StoreDriverMemory    = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// Inquiry store
	StoreDriver      string
	FeedPollInterval time.Duration

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Firestore
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Admin auth
	JwtSecret         string
	JwtTTL            time.Duration
	CaptchaTokenTTL   time.Duration
	AdminEmail        string
	AdminPasswordHash string

	// Server
	ApiPort        string
	ServiceApiPort string
	AllowedOrigins []string

	// Cloudflare
	CloudflareTurnstileSecretKey string
	CloudflareSiteVerifyURL      string

	// Email
	EmailProvider        string // "smtp" or "resend"
	ResendAPIKey         string
	SmtpHost             string
	SmtpPort             int
	SmtpUsername         string
	SmtpPassword         string
	SmtpFromAddress      string
	InquiryRecipients    []string
	InquiryEmailMaxRetry int
	InquirySendAck       bool

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageBaseS3URL     string
	ImageMaxDimension  int
	ImageMaxSizeMB     int

	// App Defaults
	AppName string

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// EmailConfigured reports whether inquiry notification emails can be sent.
// A missing configuration is not fatal: inquiries are still stored.
func (c *Config) EmailConfigured() bool {
	if len(c.InquiryRecipients) == 0 || c.SmtpFromAddress == "" {
		return false
	}
	if c.EmailProvider == "resend" {
		return c.ResendAPIKey != ""
	}
	return true
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMongo))
	// Projects and content live in MongoDB whatever the inquiry driver is.
	cfg.MongoURI = getEnv("MONGO_URI", "")
	switch cfg.StoreDriver {
	case StoreDriverMongo:
		cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
		if err != nil {
			return nil, err
		}
	case StoreDriverFirestore:
		cfg.FirebaseProjectID, err = getRequiredEnv("FIREBASE_PROJECT_ID")
		if err != nil {
			return nil, err
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: expected mongo, firestore or memory", cfg.StoreDriver)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "site")
	cfg.FirebaseCredentialsFile = getEnv("FIREBASE_CREDENTIALS_FILE", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.AdminEmail = getEnv("ADMIN_EMAIL", "")
	cfg.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", "")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", "*"))
	cfg.CloudflareTurnstileSecretKey = getEnv("CLOUDFLARE_TURNSTILE_SECRET_KEY", "")
	cfg.CloudflareSiteVerifyURL = getEnv("CLOUDFLARE_SITEVERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify")
	cfg.EmailProvider = strings.ToLower(getEnv("EMAIL_PROVIDER", "smtp"))
	cfg.ResendAPIKey = getEnv("RESEND_API_KEY", "")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "")
	cfg.InquiryRecipients = splitList(getEnv("INQUIRY_RECIPIENTS", ""))
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.ImageBaseS3URL = getEnv("IMAGE_BASE_S3_URL", "")
	cfg.AppName = getEnv("APP_NAME", "Site")

	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "28800"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	captchaTTLSeconds, err := strconv.ParseInt(getEnv("CAPTCHA_TOKEN_TTL", "1200"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTCHA_TOKEN_TTL: %w", err)
	}
	cfg.CaptchaTokenTTL = time.Duration(captchaTTLSeconds) * time.Second

	pollMillis, err := strconv.ParseInt(getEnv("FEED_POLL_INTERVAL_MS", "5000"), 10, 64)
	if err != nil || pollMillis <= 0 {
		return nil, fmt.Errorf("invalid FEED_POLL_INTERVAL_MS: %q", getEnv("FEED_POLL_INTERVAL_MS", ""))
	}
	cfg.FeedPollInterval = time.Duration(pollMillis) * time.Millisecond

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.InquiryEmailMaxRetry, err = strconv.Atoi(getEnv("INQUIRY_EMAIL_MAX_RETRY", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid INQUIRY_EMAIL_MAX_RETRY: %w", err)
	}

	cfg.InquirySendAck, err = strconv.ParseBool(getEnv("INQUIRY_SEND_ACK", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid INQUIRY_SEND_ACK: %w", err)
	}

	cfg.ImageMaxDimension, err = strconv.Atoi(getEnv("IMAGE_MAX_DIMENSION", "2560"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_DIMENSION: %w", err)
	}

	cfg.ImageMaxSizeMB, err = strconv.Atoi(getEnv("IMAGE_MAX_SIZE_MB", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_SIZE_MB: %w", err)
	}

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}

// splitList splits a comma-separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
