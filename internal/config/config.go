package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBFile      string
	AdminAddr   string
	APIAddr     string
	BaseURL     string
	UploadsPath string
	AuthSecret  string
	TokenExpiry time.Duration

	// Typing indicators expire after TypingTTL unless refreshed; the
	// sweeper removes expired entries every TypingSweep.
	TypingTTL   time.Duration
	TypingSweep time.Duration

	MaxUploadBytes int64

	// Web push is disabled when the VAPID key pair is empty.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
}

func Load(cliMode bool) (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_EXPIRY: %w", err)
	}

	typingTTL, err := time.ParseDuration(getEnv("TYPING_TTL", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TYPING_TTL: %w", err)
	}

	typingSweep, err := time.ParseDuration(getEnv("TYPING_SWEEP", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TYPING_SWEEP: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("AURACHAT_DB", "aurachat.db"),
		AdminAddr:       getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		UploadsPath:     getEnv("UPLOADS_PATH", "uploads"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		TokenExpiry:     tokenExpiry,
		TypingTTL:       typingTTL,
		TypingSweep:     typingSweep,
		MaxUploadBytes:  25 << 20,
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: getEnv("VAPID_SUBSCRIBER", "mailto:admin@localhost"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.TypingTTL <= 0 || c.TypingSweep <= 0 {
		return fmt.Errorf("TYPING_TTL and TYPING_SWEEP must be greater than 0")
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
