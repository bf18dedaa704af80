// Package reminders provides the invoice reminder module: trigger routes for
// scheduled and manual runs plus the run audit listing.
package reminders

import (
	apphttp "billing_reminders_backend/internal/http"
	"billing_reminders_backend/internal/reminders/handler"
	"billing_reminders_backend/internal/reminders/service"
	"billing_reminders_backend/platform/config"
	"billing_reminders_backend/platform/httpkit"
	"billing_reminders_backend/platform/logger"
	"billing_reminders_backend/platform/validator"
)

// Module represents the reminders domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
	cfg     config.ReminderConfig
	log     *logger.Logger
}

// NewModule wires the module around an already constructed engine.
func NewModule(svc *service.Service, val *validator.Validator, cfg config.ReminderConfig, log *logger.Logger) *Module {
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		cfg:     cfg,
		log:     log,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "reminders"
}

// Service returns the engine for the scheduler worker and CLI.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	cron := ctx.V1.Group("/reminders")
	cron.Use(ctx.TriggerRateLimiter.RateLimit(), httpkit.SharedSecretRequired(m.cfg.GetReminderCronSecret(), m.log))
	cron.POST("/cron", m.handler.TriggerCron)

	admin := ctx.Admin.Group("/reminders")
	admin.POST("/run", ctx.TriggerRateLimiter.RateLimit(), m.handler.TriggerManual)
	admin.GET("/runs", m.handler.ListRuns)

	if m.cfg.IsDevTriggerEnabled() {
		dev := ctx.Protected.Group("/dev/reminders")
		dev.POST("/run", m.handler.TriggerDev)
	}
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
