// Package webhook provides the inbound email delivery webhook: signature
// verification, event extraction and reconciliation of failed deliveries.
package webhook

import (
	"errors"

	apphttp "billing_reminders_backend/internal/http"
	"billing_reminders_backend/platform/config"
	"billing_reminders_backend/platform/logger"
)

// Module is the delivery webhook module implementing http.Module.
type Module struct {
	handler  *Handler
	verifier *Verifier
	log      *logger.Logger
}

// NewModule wires the webhook around the reminder reconciler. Events are
// attributed to provider, which must match the provider recorded on run items.
func NewModule(reconciler Reconciler, provider string, cfg config.WebhookConfig, log *logger.Logger) (*Module, error) {
	verifier, err := NewVerifier(cfg.GetEmailWebhookSecret(), cfg.GetEmailWebhookTolerance())
	if err != nil && !errors.Is(err, ErrSecretNotProvided) {
		return nil, err
	}
	if verifier == nil {
		log.Warn("EMAIL_WEBHOOK_SECRET not set; delivery webhook will reject all calls")
	}
	return &Module{
		handler:  NewHandler(reconciler, provider, log),
		verifier: verifier,
		log:      log,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context. The
// route is not IP rate limited: providers deliver bounce bursts from a few
// addresses and the signature check already gates it.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/webhooks/email-delivery",
		SignatureRequired(m.verifier, m.log),
		m.handler.HandleEmailDelivery,
	)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
