package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"billing_reminders_backend/internal/reminders/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Only sent items are flipped; the guard makes duplicate and out-of-order
// webhook deliveries no-ops.
const markItemsFailedSQL = `
	UPDATE reminder_run_items
	SET status = 'error',
	    error_code = @code,
	    error_type = @type,
	    error_message = @message,
	    updated_at = @at
	WHERE lower(provider) = lower(@provider)
	  AND lower(provider_message_id) = lower(@message_id)
	  AND status <> 'error'
	RETURNING run_id`

const runItemCountsSQL = `
	SELECT count(*),
	       count(*) FILTER (WHERE status = 'sent'),
	       count(*) FILTER (WHERE status = 'error')
	FROM reminder_run_items
	WHERE run_id = $1`

const recentErrorItemsSQL = `
	SELECT invoice_id, recipient_email, coalesce(error_code, ''), coalesce(error_type, ''),
	       coalesce(error_message, ''), updated_at
	FROM reminder_run_items
	WHERE run_id = $1 AND status = 'error'
	ORDER BY updated_at DESC, id DESC
	LIMIT $2`

const updateRunAggregateSQL = `
	UPDATE reminder_runs
	SET attempted_count = $2,
	    sent_count = $3,
	    error_count = $4,
	    errors = $5
	WHERE id = $1`

// ApplyDeliveryFailure flips matching sent items to error and recomputes the
// aggregates of every run it touched, in one transaction. On a schema without
// run items nothing can match and the result is zero/zero.
func (r *Repository) ApplyDeliveryFailure(ctx context.Context, f domain.DeliveryFailure) (domain.ReconcileResult, error) {
	if err := r.ready(); err != nil {
		return domain.ReconcileResult{}, err
	}
	caps, err := r.probe.Capabilities(ctx)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	if !caps.HasItems() {
		return domain.ReconcileResult{}, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("begin reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	runIDs, items, err := markItemsFailed(ctx, tx, f)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	for _, runID := range runIDs {
		if err := recomputeRun(ctx, tx, runID); err != nil {
			return domain.ReconcileResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("commit reconcile: %w", err)
	}
	return domain.ReconcileResult{UpdatedRuns: len(runIDs), UpdatedItems: items}, nil
}

// markItemsFailed returns the distinct runs touched, in first-seen order, and the item count.
func markItemsFailed(ctx context.Context, tx pgx.Tx, f domain.DeliveryFailure) ([]uuid.UUID, int, error) {
	rows, err := tx.Query(ctx, markItemsFailedSQL, pgx.NamedArgs{
		"provider":   f.Provider,
		"message_id": f.MessageID,
		"code":       nullableString(f.Code),
		"type":       nullableString(f.Type),
		"message":    nullableString(f.Message),
		"at":         f.At.UTC(),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("mark run items failed: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]struct{})
	var runIDs []uuid.UUID
	items := 0
	for rows.Next() {
		var runID uuid.UUID
		if err := rows.Scan(&runID); err != nil {
			return nil, 0, fmt.Errorf("scan failed item: %w", err)
		}
		items++
		if _, ok := seen[runID]; ok {
			continue
		}
		seen[runID] = struct{}{}
		runIDs = append(runIDs, runID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("mark run items failed: %w", err)
	}
	return runIDs, items, nil
}

// recomputeRun derives the run's counters from its items rather than adjusting
// them, and refreshes the bounded error sample.
func recomputeRun(ctx context.Context, tx pgx.Tx, runID uuid.UUID) error {
	var attempted, sent, failed int
	if err := tx.QueryRow(ctx, runItemCountsSQL, runID).Scan(&attempted, &sent, &failed); err != nil {
		return fmt.Errorf("count run items: %w", err)
	}

	rows, err := tx.Query(ctx, recentErrorItemsSQL, runID, domain.ErrorSampleSize)
	if err != nil {
		return fmt.Errorf("load run error items: %w", err)
	}
	sample := domain.NewErrorSample(domain.ErrorSampleSize)
	for rows.Next() {
		var e domain.ErrorEntry
		if err := rows.Scan(&e.InvoiceID, &e.Recipient, &e.Code, &e.Type, &e.Message, &e.At); err != nil {
			rows.Close()
			return fmt.Errorf("scan run error item: %w", err)
		}
		sample.Add(e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load run error items: %w", err)
	}

	errorsJSON, err := json.Marshal(sample.Entries())
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}
	if _, err := tx.Exec(ctx, updateRunAggregateSQL, runID, attempted, sent, failed, errorsJSON); err != nil {
		return fmt.Errorf("update run aggregate: %w", err)
	}
	return nil
}
