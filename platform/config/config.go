// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// EmailConfig provides settings for the transactional email collaborator.
type EmailConfig interface {
	GetEmailProvider() string
	GetResendAPIKey() string
	GetResendBaseURL() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// ReminderConfig provides settings for the reminder engine.
type ReminderConfig interface {
	GetAppBaseURL() string
	GetReminderCronSecret() string
	GetReminderBatchLimit() int
	GetReminderDispatchConcurrency() int
	GetPayLinkSecret() string
	GetPayLinkTTL() time.Duration
	IsDevTriggerEnabled() bool
}

// WebhookConfig provides settings for inbound delivery webhooks.
type WebhookConfig interface {
	GetEmailWebhookSecret() string
	GetEmailWebhookTolerance() time.Duration
}

// SchedulerConfig provides settings for the asynq-based scheduled trigger.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReminderCronSpec() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                         string
	HTTPAddr                    string
	DatabaseURL                 string
	MigrationsAuto              bool
	JWTAccessSecret             string
	CORSAllowAll                bool
	CORSOrigins                 []string
	CORSAllowCreds              bool
	AppBaseURL                  string
	EmailProvider               string
	ResendAPIKey                string
	ResendBaseURL               string
	SMTPHost                    string
	SMTPPort                    int
	SMTPUsername                string
	SMTPPassword                string
	EmailFromName               string
	EmailFromAddress            string
	ReminderCronSecret          string
	ReminderBatchLimit          int
	ReminderDispatchConcurrency int
	ReminderCronSpec            string
	PayLinkSecret               string
	PayLinkTTL                  time.Duration
	EmailWebhookSecret          string
	EmailWebhookTolerance       time.Duration
	RedisURL                    string
	RedisTLSInsecure            bool
	AsynqQueueName              string
	AsynqConcurrency            int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// EmailConfig implementation
func (c *Config) GetEmailProvider() string    { return c.EmailProvider }
func (c *Config) GetResendAPIKey() string     { return c.ResendAPIKey }
func (c *Config) GetResendBaseURL() string    { return c.ResendBaseURL }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// ReminderConfig implementation
func (c *Config) GetAppBaseURL() string               { return c.AppBaseURL }
func (c *Config) GetReminderCronSecret() string       { return c.ReminderCronSecret }
func (c *Config) GetReminderBatchLimit() int          { return c.ReminderBatchLimit }
func (c *Config) GetReminderDispatchConcurrency() int { return c.ReminderDispatchConcurrency }
func (c *Config) GetPayLinkSecret() string            { return c.PayLinkSecret }
func (c *Config) GetPayLinkTTL() time.Duration        { return c.PayLinkTTL }
func (c *Config) IsDevTriggerEnabled() bool           { return strings.EqualFold(c.Env, "development") }

// WebhookConfig implementation
func (c *Config) GetEmailWebhookSecret() string           { return c.EmailWebhookSecret }
func (c *Config) GetEmailWebhookTolerance() time.Duration { return c.EmailWebhookTolerance }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string         { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool   { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string   { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int    { return c.AsynqConcurrency }
func (c *Config) GetReminderCronSpec() string { return c.ReminderCronSpec }

// Load reads configuration from environment variables (and a .env file when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                         getEnv("APP_ENV", "development"),
		HTTPAddr:                    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		MigrationsAuto:              strings.EqualFold(getEnv("MIGRATIONS_AUTO", "true"), "true"),
		JWTAccessSecret:             getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                corsAllowAll,
		CORSOrigins:                 corsOrigins,
		CORSAllowCreds:              strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:                  strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:4200"), "/"),
		EmailProvider:               strings.ToLower(getEnv("EMAIL_PROVIDER", "noop")),
		ResendAPIKey:                getEnv("RESEND_API_KEY", ""),
		ResendBaseURL:               getEnv("RESEND_BASE_URL", "https://api.resend.com"),
		SMTPHost:                    getEnv("SMTP_HOST", ""),
		SMTPPort:                    mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                getEnv("SMTP_PASSWORD", ""),
		EmailFromName:               getEnv("EMAIL_FROM_NAME", "Billing"),
		EmailFromAddress:            getEnv("EMAIL_FROM_ADDRESS", ""),
		ReminderCronSecret:          getEnv("REMINDER_CRON_SECRET", ""),
		ReminderBatchLimit:          mustInt(getEnv("REMINDER_BATCH_LIMIT", "200")),
		ReminderDispatchConcurrency: mustInt(getEnv("REMINDER_DISPATCH_CONCURRENCY", "1")),
		ReminderCronSpec:            getEnv("REMINDER_CRON_SPEC", "0 8 * * *"),
		PayLinkSecret:               getEnv("PAY_LINK_SECRET", ""),
		PayLinkTTL:                  mustDuration(getEnv("PAY_LINK_TTL", "720h")),
		EmailWebhookSecret:          getEnv("EMAIL_WEBHOOK_SECRET", ""),
		EmailWebhookTolerance:       mustDuration(getEnv("EMAIL_WEBHOOK_TOLERANCE", "5m")),
		RedisURL:                    getEnv("REDIS_URL", ""),
		RedisTLSInsecure:            strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:              getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:            mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	switch c.EmailProvider {
	case "noop":
	case "resend":
		if c.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when EMAIL_PROVIDER is resend")
		}
	case "smtp":
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
		}
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be one of resend, smtp, noop (got %q)", c.EmailProvider)
	}
	if c.EmailProvider != "noop" && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if c.PayLinkSecret == "" {
		return fmt.Errorf("PAY_LINK_SECRET is required")
	}
	if c.ReminderBatchLimit < 1 {
		return fmt.Errorf("REMINDER_BATCH_LIMIT must be positive")
	}
	if c.ReminderDispatchConcurrency < 1 {
		return fmt.Errorf("REMINDER_DISPATCH_CONCURRENCY must be positive")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
