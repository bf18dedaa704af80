// Package migrations embeds the goose SQL migrations shipped with the service.
package migrations

import "embed"

// FS holds every *.sql migration in apply order.
//
//go:embed *.sql
var FS embed.FS

// Names of the migrations the reminder engine depends on. Used in
// migration-required errors so operators know what to apply.
const (
	ReminderRuns     = "00002_reminder_runs.sql"
	ReminderRunItems = "00003_reminder_run_items.sql"
)
