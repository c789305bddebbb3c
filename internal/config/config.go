package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	QueueModeRedis  = "redis"
	QueueModeInline = "inline"

	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

type Config struct {
	ServerPort string `validate:"required,numeric"`
	AppEnv     string
	LogLevel   string

	DatabaseURL string `validate:"required"`
	RedisURL    string `validate:"required"`
	AutoMigrate bool

	JWTSecret string `validate:"required"`
	JWTExpiry time.Duration

	// EncryptionKey decrypts the stored Stripe API key.
	EncryptionKey string `validate:"required,min=32"`

	StripeAPIBase       string `validate:"required,url"`
	StripeWebhookSecret string

	QBOClientID     string `validate:"required"`
	QBOClientSecret string `validate:"required"`
	QBOEnvironment  string `validate:"oneof=sandbox production"`
	QBOBaseURL      string `validate:"required,url"`
	QBOTokenURL     string `validate:"required,url"`
	QBOMinorVersion string

	HTTPTimeout time.Duration `validate:"min=10s,max=30s"`

	// FallbackItemName is used when an item cannot be created under its
	// product name. Empty disables the fallback.
	FallbackItemName       string
	DefaultIncomeAccountID string

	QueueMode        string `validate:"oneof=redis inline"`
	QueueWorkers     int    `validate:"min=1,max=64"`
	QueueMaxAttempts int    `validate:"min=1"`
	QueueRetryBase   time.Duration
	QueueRetryMax    time.Duration

	TokenSweepSchedule string `validate:"required"`
	TokenRefreshWindow time.Duration
	TaxRefreshSchedule string
}

func LoadConfig() (*Config, error) {
	expiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}
	httpTimeout, err := time.ParseDuration(getEnv("HTTP_TIMEOUT", "20s"))
	if err != nil {
		return nil, errors.New("invalid HTTP_TIMEOUT format")
	}
	retryBase, err := time.ParseDuration(getEnv("QUEUE_RETRY_BASE", "30s"))
	if err != nil {
		return nil, errors.New("invalid QUEUE_RETRY_BASE format")
	}
	retryMax, err := time.ParseDuration(getEnv("QUEUE_RETRY_MAX", "30m"))
	if err != nil {
		return nil, errors.New("invalid QUEUE_RETRY_MAX format")
	}
	refreshWindow, err := time.ParseDuration(getEnv("TOKEN_REFRESH_WINDOW", "24h"))
	if err != nil {
		return nil, errors.New("invalid TOKEN_REFRESH_WINDOW format")
	}
	workers, err := strconv.Atoi(getEnv("QUEUE_WORKERS", "3"))
	if err != nil {
		return nil, errors.New("invalid QUEUE_WORKERS value")
	}
	maxAttempts, err := strconv.Atoi(getEnv("QUEUE_MAX_ATTEMPTS", "5"))
	if err != nil {
		return nil, errors.New("invalid QUEUE_MAX_ATTEMPTS value")
	}
	autoMigrate, err := strconv.ParseBool(getEnv("AUTO_MIGRATE", "false"))
	if err != nil {
		return nil, errors.New("invalid AUTO_MIGRATE value")
	}

	qboEnv := getEnv("QBO_ENVIRONMENT", EnvironmentSandbox)

	cfg := &Config{
		ServerPort:             getEnv("SERVER_PORT", "8080"),
		AppEnv:                 getEnv("APP_ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		AutoMigrate:            autoMigrate,
		JWTSecret:              os.Getenv("JWT_SECRET"),
		JWTExpiry:              expiry,
		EncryptionKey:          os.Getenv("ENCRYPTION_KEY"),
		StripeAPIBase:          getEnv("STRIPE_API_BASE", "https://api.stripe.com"),
		StripeWebhookSecret:    os.Getenv("STRIPE_WEBHOOK_SECRET"),
		QBOClientID:            os.Getenv("QBO_CLIENT_ID"),
		QBOClientSecret:        os.Getenv("QBO_CLIENT_SECRET"),
		QBOEnvironment:         qboEnv,
		QBOBaseURL:             getEnv("QBO_BASE_URL", defaultQBOBaseURL(qboEnv)),
		QBOTokenURL:            getEnv("QBO_TOKEN_URL", "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"),
		QBOMinorVersion:        getEnv("QBO_MINOR_VERSION", "65"),
		HTTPTimeout:            httpTimeout,
		FallbackItemName:       getEnv("FALLBACK_ITEM_NAME", "Stripe Payment"),
		DefaultIncomeAccountID: getEnv("DEFAULT_INCOME_ACCOUNT_ID", "1"),
		QueueMode:              getEnv("QUEUE_MODE", QueueModeRedis),
		QueueWorkers:           workers,
		QueueMaxAttempts:       maxAttempts,
		QueueRetryBase:         retryBase,
		QueueRetryMax:          retryMax,
		TokenSweepSchedule:     getEnv("TOKEN_SWEEP_SCHEDULE", "@every 1h"),
		TokenRefreshWindow:     refreshWindow,
		TaxRefreshSchedule:     os.Getenv("TAX_REFRESH_SCHEDULE"),
	}

	// FALLBACK_ITEM_NAME=none turns the fallback off explicitly.
	if cfg.FallbackItemName == "none" {
		cfg.FallbackItemName = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first invalid field using its env var name.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid configuration: %s failed %q", envName(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("invalid configuration: %w", err)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func defaultQBOBaseURL(env string) string {
	if env == EnvironmentProduction {
		return "https://quickbooks.api.intuit.com"
	}
	return "https://sandbox-quickbooks.api.intuit.com"
}

var envNames = map[string]string{
	"ServerPort":         "SERVER_PORT",
	"DatabaseURL":        "DATABASE_URL",
	"RedisURL":           "REDIS_URL",
	"JWTSecret":          "JWT_SECRET",
	"EncryptionKey":      "ENCRYPTION_KEY",
	"StripeAPIBase":      "STRIPE_API_BASE",
	"QBOClientID":        "QBO_CLIENT_ID",
	"QBOClientSecret":    "QBO_CLIENT_SECRET",
	"QBOEnvironment":     "QBO_ENVIRONMENT",
	"QBOBaseURL":         "QBO_BASE_URL",
	"QBOTokenURL":        "QBO_TOKEN_URL",
	"HTTPTimeout":        "HTTP_TIMEOUT",
	"QueueMode":          "QUEUE_MODE",
	"QueueWorkers":       "QUEUE_WORKERS",
	"QueueMaxAttempts":   "QUEUE_MAX_ATTEMPTS",
	"TokenSweepSchedule": "TOKEN_SWEEP_SCHEDULE",
}

func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
