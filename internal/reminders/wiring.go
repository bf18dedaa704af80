package reminders

import (
	"billing_reminders_backend/internal/email"
	"billing_reminders_backend/internal/reminders/paylink"
	"billing_reminders_backend/internal/reminders/repository"
	"billing_reminders_backend/internal/reminders/service"
	"billing_reminders_backend/platform/config"
	"billing_reminders_backend/platform/logger"
	"billing_reminders_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Components is the reminder engine assembled over one store.
type Components struct {
	Repository *repository.Repository
	Service    *service.Service
	Reconciler *service.Reconciler
	Sender     email.Sender
}

// NewComponents builds the engine shared by the API, the scheduler worker and the CLI.
func NewComponents(pool *pgxpool.Pool, sender email.Sender, val *validator.Validator, cfg config.ReminderConfig, log *logger.Logger) *Components {
	repo := repository.New(pool)
	links := paylink.NewSigner(cfg.GetPayLinkSecret(), cfg.GetAppBaseURL(), cfg.GetPayLinkTTL())
	dispatcher := service.NewDispatcher(sender, links, val, cfg.GetReminderDispatchConcurrency(), log)

	return &Components{
		Repository: repo,
		Service:    service.New(repo, repo, dispatcher, log, cfg.GetReminderBatchLimit()),
		Reconciler: service.NewReconciler(repo, log),
		Sender:     sender,
	}
}
