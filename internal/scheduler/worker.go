package scheduler

import (
	"context"
	"fmt"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/internal/reminders/service"
	"billing_reminders_backend/platform/apperr"
	"billing_reminders_backend/platform/config"
	"billing_reminders_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Engine is the reminder entry point the worker drives.
type Engine interface {
	Run(ctx context.Context, req service.RunRequest) (domain.RunOutcome, error)
	RunAllScopes(ctx context.Context, source domain.TriggerSource, dryRun bool) ([]domain.RunOutcome, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine Engine
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, engine Engine, log *logger.Logger) (*Worker, error) {
	opt, queue, err := connOpts(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 4
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := newWorker(engine, log)
	w.server = server
	return w, nil
}

func newWorker(engine Engine, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:    mux,
		engine: engine,
		log:    log,
	}
	mux.HandleFunc(TaskReminderRun, w.handleReminderRun)
	return w
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

func (w *Worker) handleReminderRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReminderRunPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if payload.WorkspaceID != "" {
		workspaceID, err := uuid.Parse(payload.WorkspaceID)
		if err != nil {
			return fmt.Errorf("%w: workspace id: %v", asynq.SkipRetry, err)
		}
		_, err = w.engine.Run(ctx, service.RunRequest{
			Scope:       domain.WorkspaceScope(workspaceID),
			TriggeredBy: domain.TriggerCron,
			DryRun:      payload.DryRun,
		})
		return w.taskError(err)
	}

	outcomes, err := w.engine.RunAllScopes(ctx, domain.TriggerCron, payload.DryRun)
	if err != nil {
		return w.taskError(err)
	}
	sent := 0
	for _, o := range outcomes {
		sent += o.Run.SentCount
	}
	w.log.Info("scheduled reminder run finished", "scopes", len(outcomes), "sent", sent, "dry_run", payload.DryRun)
	return nil
}

// taskError stops retries for failures that only an operator can fix.
func (w *Worker) taskError(err error) error {
	if err == nil {
		return nil
	}
	if apperr.Is(err, apperr.KindMigrationRequired) {
		w.log.Error("scheduled reminder run needs a migration", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return err
}
