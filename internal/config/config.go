package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	// PortalBaseURL is the public origin portal links are built on, e.g.
	// https://portal.example.agency
	PortalBaseURL string `env:"PORTAL_BASE_URL,required"`

	// OperatorKeyHash is the bcrypt hash of the internal operator API key.
	OperatorKeyHash string `env:"OPERATOR_KEY_HASH"`

	// Blob storage
	StorageBucket      string `env:"STORAGE_BUCKET,required"`
	StorageSignerEmail string `env:"STORAGE_SIGNER_EMAIL"`
	StorageSignerKey   string `env:"STORAGE_SIGNER_KEY"`

	// Payment processor
	PaymentAPIKey        string `env:"PAYMENT_API_KEY"`
	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET"`

	UploadMaxBytes      int64 `env:"UPLOAD_MAX_BYTES" envDefault:"52428800"`
	SignedURLTTLSeconds int   `env:"SIGNED_URL_TTL_SECONDS" envDefault:"3600"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// PortalURL builds the client-facing link embedding a portal token.
func (c *Config) PortalURL(token string) string {
	return fmt.Sprintf("%s/p/%s", strings.TrimRight(c.PortalBaseURL, "/"), token)
}

// CheckoutSuccessURL is where the processor redirects after a completed
// checkout. The session id placeholder is substituted by the processor.
func (c *Config) CheckoutSuccessURL() string {
	return strings.TrimRight(c.PortalBaseURL, "/") + "/payments/success?session_id={CHECKOUT_SESSION_ID}"
}

func (c *Config) CheckoutCancelURL() string {
	return strings.TrimRight(c.PortalBaseURL, "/") + "/payments/cancelled"
}

func (c *Config) Validate(isProduction bool) error {
	if c.OperatorKeyHash != "" {
		if !strings.HasPrefix(c.OperatorKeyHash, "$2a$") &&
			!strings.HasPrefix(c.OperatorKeyHash, "$2b$") &&
			!strings.HasPrefix(c.OperatorKeyHash, "$2y$") {
			return fmt.Errorf("OPERATOR_KEY_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <key>)")
		}
	}

	if isProduction {
		if c.OperatorKeyHash == "" {
			return fmt.Errorf("OPERATOR_KEY_HASH is required in production")
		}
		if err := validateSecret("PAYMENT_WEBHOOK_SECRET", c.PaymentWebhookSecret); err != nil {
			return err
		}
		if c.PaymentAPIKey == "" {
			log.Warn().Msg("PAYMENT_API_KEY is empty in production: checkout session creation will fail")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if !strings.HasPrefix(c.PortalBaseURL, "https://") {
			return fmt.Errorf("PORTAL_BASE_URL must be https in production")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
