package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/reminders")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("PAY_LINK_SECRET", "pay-secret")
	t.Setenv("CORS_ALLOW_ALL", "false")
	t.Setenv("CORS_ORIGINS", "http://localhost:4200")
	t.Setenv("EMAIL_PROVIDER", "noop")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GetReminderBatchLimit() != 200 {
		t.Fatalf("expected default batch limit 200, got %d", cfg.GetReminderBatchLimit())
	}
	if cfg.GetReminderDispatchConcurrency() != 1 {
		t.Fatalf("expected sequential dispatch by default, got %d", cfg.GetReminderDispatchConcurrency())
	}
	if cfg.GetEmailWebhookTolerance() != 5*time.Minute {
		t.Fatalf("expected 5m webhook tolerance, got %s", cfg.GetEmailWebhookTolerance())
	}
	if cfg.GetReminderCronSpec() != "0 8 * * *" {
		t.Fatalf("unexpected cron spec %q", cfg.GetReminderCronSpec())
	}
}

func TestLoadRejectsResendWithoutKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_PROVIDER", "resend")
	t.Setenv("RESEND_API_KEY", "")
	t.Setenv("EMAIL_FROM_ADDRESS", "billing@example.com")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when RESEND_API_KEY is missing")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_PROVIDER", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown EMAIL_PROVIDER")
	}
}

func TestDevTriggerOnlyInDevelopment(t *testing.T) {
	cfg := &Config{Env: "production"}
	if cfg.IsDevTriggerEnabled() {
		t.Fatal("dev trigger must be disabled outside development")
	}
	cfg.Env = "Development"
	if !cfg.IsDevTriggerEnabled() {
		t.Fatal("dev trigger must be enabled in development")
	}
}
