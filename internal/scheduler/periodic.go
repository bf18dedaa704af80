package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing_reminders_backend/platform/config"
	"billing_reminders_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the daily fan-out reminder run on REMINDER_CRON_SPEC (UTC).
type Periodic struct {
	scheduler *asynq.Scheduler
	spec      string
	queue     string
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	opt, queue, err := connOpts(cfg)
	if err != nil {
		return nil, err
	}
	spec := cfg.GetReminderCronSpec()
	if spec == "" {
		return nil, fmt.Errorf("reminder cron spec not configured")
	}

	p := &Periodic{spec: spec, queue: queue, log: log}
	p.scheduler = asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location:        time.UTC,
		PostEnqueueFunc: p.afterEnqueue,
	})
	return p, nil
}

// Run registers the reminder entry and enqueues on schedule until ctx is cancelled.
func (p *Periodic) Run(ctx context.Context) error {
	task, err := NewReminderRunTask(ReminderRunPayload{})
	if err != nil {
		return err
	}
	entryID, err := p.scheduler.Register(p.spec, task, reminderTaskOptions(p.queue)...)
	if err != nil {
		return fmt.Errorf("register reminder schedule %q: %w", p.spec, err)
	}
	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("start reminder schedule: %w", err)
	}
	p.log.Info("reminder schedule registered", "entry_id", entryID, "spec", p.spec, "queue", p.queue)

	<-ctx.Done()
	p.scheduler.Shutdown()
	return nil
}

func (p *Periodic) afterEnqueue(info *asynq.TaskInfo, err error) {
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		p.log.Warn("previous reminder run still queued; skipping enqueue")
	case err != nil:
		p.log.Error("enqueue scheduled reminder run failed", "error", err)
	default:
		p.log.Info("scheduled reminder run enqueued", "task_id", info.ID, "queue", info.Queue)
	}
}
