package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskReminderRun = "reminders.run"

const (
	reminderUniqueTTL  = 30 * time.Minute
	reminderMaxRetry   = 3
	reminderRunTimeout = 15 * time.Minute
)

// ReminderRunPayload names one workspace, or none to run every scope with due invoices.
type ReminderRunPayload struct {
	WorkspaceID string `json:"workspaceId,omitempty"`
	DryRun      bool   `json:"dryRun,omitempty"`
}

func NewReminderRunTask(payload ReminderRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderRun, data), nil
}

func ParseReminderRunPayload(task *asynq.Task) (ReminderRunPayload, error) {
	var payload ReminderRunPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReminderRunPayload{}, err
	}
	return payload, nil
}

// Unique keeps a slow or stuck run from stacking copies in the queue. Two runs
// that do overlap are still safe because invoices are claimed in the database.
func reminderTaskOptions(queue string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queue),
		asynq.Unique(reminderUniqueTTL),
		asynq.MaxRetry(reminderMaxRetry),
		asynq.Timeout(reminderRunTimeout),
	}
}
