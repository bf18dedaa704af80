package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/migrations"

	"github.com/jackc/pgx/v5"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// runAdapter writes and reads runs for one schema version.
type runAdapter interface {
	record(ctx context.Context, tx pgx.Tx, outcome domain.RunOutcome) error
	list(ctx context.Context, q querier, scope domain.Scope, limit int) ([]domain.Run, error)
}

func adapterFor(caps Capabilities) (runAdapter, error) {
	switch caps.Version {
	case SchemaV2:
		return runsV2{}, nil
	case SchemaV1:
		return runsV1{}, nil
	default:
		return nil, migrationRequired(migrations.ReminderRuns)
	}
}

// CheckRecordable fails with a migration-required error when a run for scope
// could not be recorded. Callers check before claiming so no level is spent
// without an audit row.
func (r *Repository) CheckRecordable(ctx context.Context, scope domain.Scope) error {
	if err := r.ready(); err != nil {
		return err
	}
	caps, err := r.probe.Capabilities(ctx)
	if err != nil {
		return err
	}
	return checkScopeSupported(caps, scope)
}

func checkScopeSupported(caps Capabilities, scope domain.Scope) error {
	if caps.Version == SchemaNone {
		return migrationRequired(migrations.ReminderRuns)
	}
	if !scope.IsLegacy() && !caps.SupportsWorkspaces() {
		return migrationRequired(migrations.ReminderRunItems)
	}
	return nil
}

// Record writes the run and, when the schema has them, its items in one transaction.
func (r *Repository) Record(ctx context.Context, outcome domain.RunOutcome) error {
	if err := r.ready(); err != nil {
		return err
	}
	caps, err := r.probe.Capabilities(ctx)
	if err != nil {
		return err
	}
	adapter, err := adapterFor(caps)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record run: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := adapter.record(ctx, tx, outcome); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs for scope, newest first.
func (r *Repository) ListRuns(ctx context.Context, scope domain.Scope, limit int) ([]domain.Run, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	caps, err := r.probe.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkScopeSupported(caps, scope); err != nil {
		return nil, err
	}
	adapter, err := adapterFor(caps)
	if err != nil {
		return nil, err
	}
	return adapter.list(ctx, r.pool, scope, limit)
}

type runsV1 struct{}

const insertRunV1SQL = `
	INSERT INTO reminder_runs (
		id, user_id, ran_at, triggered_by, dry_run,
		attempted_count, sent_count, skipped_count, error_count,
		skipped_breakdown, duration_ms, errors
	) VALUES (
		@id, @user_id, @ran_at, @triggered_by, @dry_run,
		@attempted, @sent, @skipped, @error_count,
		@skipped_breakdown, @duration_ms, @errors
	)`

const listRunsV1SQL = `
	SELECT id, NULL::uuid, user_id, NULL::text, ran_at, triggered_by, dry_run,
	       attempted_count, sent_count, skipped_count, error_count,
	       skipped_breakdown, duration_ms, errors
	FROM reminder_runs
	WHERE user_id = @scope
	ORDER BY ran_at DESC, id DESC
	LIMIT @limit`

func (runsV1) record(ctx context.Context, tx pgx.Tx, outcome domain.RunOutcome) error {
	run := outcome.Run
	if run.WorkspaceID != nil {
		return migrationRequired(migrations.ReminderRunItems)
	}
	args, err := runArgs(run)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertRunV1SQL, args); err != nil {
		return fmt.Errorf("insert reminder run: %w", err)
	}
	return nil
}

func (runsV1) list(ctx context.Context, q querier, scope domain.Scope, limit int) ([]domain.Run, error) {
	rows, err := q.Query(ctx, listRunsV1SQL, pgx.NamedArgs{"scope": scope.Key(), "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list reminder runs: %w", err)
	}
	return scanRuns(rows)
}

type runsV2 struct{}

const insertRunV2SQL = `
	INSERT INTO reminder_runs (
		id, workspace_id, user_id, actor_email, ran_at, triggered_by, dry_run,
		attempted_count, sent_count, skipped_count, error_count,
		skipped_breakdown, duration_ms, errors
	) VALUES (
		@id, @workspace_id, @user_id, @actor_email, @ran_at, @triggered_by, @dry_run,
		@attempted, @sent, @skipped, @error_count,
		@skipped_breakdown, @duration_ms, @errors
	)`

const insertRunItemSQL = `
	INSERT INTO reminder_run_items (
		run_id, invoice_id, recipient_email, provider, provider_message_id,
		status, error_code, error_type, error_message, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

const listRunsV2WorkspaceSQL = `
	SELECT id, workspace_id, user_id, actor_email, ran_at, triggered_by, dry_run,
	       attempted_count, sent_count, skipped_count, error_count,
	       skipped_breakdown, duration_ms, errors
	FROM reminder_runs
	WHERE workspace_id = @scope
	ORDER BY ran_at DESC, id DESC
	LIMIT @limit`

const listRunsV2LegacySQL = `
	SELECT id, workspace_id, user_id, actor_email, ran_at, triggered_by, dry_run,
	       attempted_count, sent_count, skipped_count, error_count,
	       skipped_breakdown, duration_ms, errors
	FROM reminder_runs
	WHERE workspace_id IS NULL AND user_id = @scope
	ORDER BY ran_at DESC, id DESC
	LIMIT @limit`

func (runsV2) record(ctx context.Context, tx pgx.Tx, outcome domain.RunOutcome) error {
	args, err := runArgs(outcome.Run)
	if err != nil {
		return err
	}
	args["workspace_id"] = outcome.Run.WorkspaceID
	args["actor_email"] = nullableString(outcome.Run.ActorEmail)

	if _, err := tx.Exec(ctx, insertRunV2SQL, args); err != nil {
		return fmt.Errorf("insert reminder run: %w", err)
	}
	if len(outcome.Items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range outcome.Items {
		at := item.At
		if at.IsZero() {
			at = outcome.Run.RanAt
		}
		batch.Queue(insertRunItemSQL,
			outcome.Run.ID,
			item.InvoiceID,
			domain.NormalizeEmail(item.RecipientEmail),
			item.Provider,
			item.ProviderMessageID,
			string(item.Status),
			nullableString(item.ErrorCode),
			nullableString(item.ErrorType),
			nullableString(item.ErrorMessage),
			at,
		)
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range outcome.Items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert reminder run item: %w", err)
		}
	}
	return nil
}

func (runsV2) list(ctx context.Context, q querier, scope domain.Scope, limit int) ([]domain.Run, error) {
	sql := listRunsV2WorkspaceSQL
	if scope.IsLegacy() {
		sql = listRunsV2LegacySQL
	}
	rows, err := q.Query(ctx, sql, pgx.NamedArgs{"scope": scope.Key(), "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list reminder runs: %w", err)
	}
	return scanRuns(rows)
}

func runArgs(run domain.Run) (pgx.NamedArgs, error) {
	breakdown := run.SkippedBreakdown
	if breakdown == nil {
		breakdown = map[domain.SkipReason]int{}
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, fmt.Errorf("marshal skipped breakdown: %w", err)
	}
	errorsSample := run.Errors
	if errorsSample == nil {
		errorsSample = []domain.ErrorEntry{}
	}
	errorsJSON, err := json.Marshal(errorsSample)
	if err != nil {
		return nil, fmt.Errorf("marshal run errors: %w", err)
	}

	return pgx.NamedArgs{
		"id":                run.ID,
		"user_id":           run.AccountID,
		"ran_at":            run.RanAt,
		"triggered_by":      string(run.TriggeredBy),
		"dry_run":           run.DryRun,
		"attempted":         run.AttemptedCount,
		"sent":              run.SentCount,
		"skipped":           run.SkippedCount,
		"error_count":       run.ErrorCount,
		"skipped_breakdown": breakdownJSON,
		"duration_ms":       run.DurationMs,
		"errors":            errorsJSON,
	}, nil
}

func scanRuns(rows pgx.Rows) ([]domain.Run, error) {
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		var (
			run           domain.Run
			actorEmail    *string
			triggeredBy   string
			breakdownJSON []byte
			errorsJSON    []byte
		)
		if err := rows.Scan(
			&run.ID,
			&run.WorkspaceID,
			&run.AccountID,
			&actorEmail,
			&run.RanAt,
			&triggeredBy,
			&run.DryRun,
			&run.AttemptedCount,
			&run.SentCount,
			&run.SkippedCount,
			&run.ErrorCount,
			&breakdownJSON,
			&run.DurationMs,
			&errorsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan reminder run: %w", err)
		}
		run.TriggeredBy = domain.TriggerSource(triggeredBy)
		if actorEmail != nil {
			run.ActorEmail = *actorEmail
		}
		if len(breakdownJSON) > 0 {
			if err := json.Unmarshal(breakdownJSON, &run.SkippedBreakdown); err != nil {
				return nil, fmt.Errorf("decode skipped breakdown: %w", err)
			}
		}
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
				return nil, fmt.Errorf("decode run errors: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reminder runs: %w", err)
	}
	return runs, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
