package repository

import (
	"context"
	"fmt"
	"time"

	"billing_reminders_backend/internal/reminders/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Scope predicates. Legacy deployments own invoices by account and have no workspace.
const (
	workspaceScopeSQL = `i.workspace_id = @scope`
	legacyScopeSQL    = `i.workspace_id IS NULL AND i.user_id = @scope`
)

// eligibleSQL is the escalation table from domain.NextEligibleLevel expressed
// over invoices i. Due dates are calendar days compared in UTC.
const eligibleSQL = `i.status = 'pending'
	  AND i.due_date IS NOT NULL
	  AND i.reminder_level < 3
	  AND (
	        (i.reminder_level = 0 AND i.due_date < (@now::timestamptz AT TIME ZONE 'UTC')::date)
	     OR (i.reminder_level = 1 AND i.last_reminder_sent_at <= @now::timestamptz - interval '7 days')
	     OR (i.reminder_level = 2 AND i.last_reminder_sent_at <= @now::timestamptz - interval '14 days')
	  )`

const hasRecipientSQL = `nullif(btrim(c.email), '') IS NOT NULL`

// The claim is one statement: rows are locked in the CTE and the outer UPDATE
// only advances rows whose level is still the one selected, so two racing
// triggers can never both return the same invoice.
const claimPrefixSQL = `
	WITH eligible AS (
		SELECT i.id, i.reminder_level, i.last_reminder_sent_at, c.email, c.name
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE `

const claimSuffixSQL = `
		  AND ` + eligibleSQL + `
		  AND ` + hasRecipientSQL + `
		ORDER BY i.due_date ASC, i.id ASC
		LIMIT @limit
		FOR UPDATE OF i SKIP LOCKED
	)
	UPDATE invoices i
	SET reminder_level = i.reminder_level + 1,
	    last_reminder_sent_at = @now,
	    updated_at = @now
	FROM eligible e
	WHERE i.id = e.id
	  AND i.reminder_level = e.reminder_level
	RETURNING i.id, i.number, i.amount_cents, i.currency, i.due_date,
	          e.reminder_level, e.last_reminder_sent_at, e.email, e.name`

const (
	claimWorkspaceSQL = claimPrefixSQL + workspaceScopeSQL + claimSuffixSQL
	claimLegacySQL    = claimPrefixSQL + legacyScopeSQL + claimSuffixSQL
)

const previewPrefixSQL = `
	SELECT i.id, i.number, i.amount_cents, i.currency, i.due_date,
	       i.reminder_level, i.last_reminder_sent_at, c.email, c.name
	FROM invoices i
	JOIN customers c ON c.id = i.customer_id
	WHERE `

const previewSuffixSQL = `
	  AND ` + eligibleSQL + `
	  AND ` + hasRecipientSQL + `
	ORDER BY i.due_date ASC, i.id ASC
	LIMIT @limit`

const (
	previewWorkspaceSQL = previewPrefixSQL + workspaceScopeSQL + previewSuffixSQL
	previewLegacySQL    = previewPrefixSQL + legacyScopeSQL + previewSuffixSQL
)

const skippedPrefixSQL = `
	SELECT count(*) FILTER (WHERE NOT (` + hasRecipientSQL + `)) AS missing_recipient,
	       count(*) FILTER (WHERE ` + hasRecipientSQL + `) AS remaining
	FROM invoices i
	LEFT JOIN customers c ON c.id = i.customer_id
	WHERE `

const skippedSuffixSQL = `
	  AND ` + eligibleSQL

const (
	skippedWorkspaceSQL = skippedPrefixSQL + workspaceScopeSQL + skippedSuffixSQL
	skippedLegacySQL    = skippedPrefixSQL + legacyScopeSQL + skippedSuffixSQL
)

const listScopesSQL = `
	SELECT DISTINCT i.workspace_id,
	       CASE WHEN i.workspace_id IS NULL THEN i.user_id END AS account_id
	FROM invoices i
	WHERE ` + eligibleSQL + `
	  AND (i.workspace_id IS NOT NULL OR i.user_id IS NOT NULL)`

func pickSQL(scope domain.Scope, workspaceSQL, legacySQL string) string {
	if scope.IsLegacy() {
		return legacySQL
	}
	return workspaceSQL
}

func scopeArgs(scope domain.Scope, now time.Time, limit int) pgx.NamedArgs {
	return pgx.NamedArgs{
		"scope": scope.Key(),
		"now":   now.UTC(),
		"limit": limit,
	}
}

// ClaimEligible advances every eligible invoice in scope (up to limit) by one
// level and returns their pre-claim state.
func (r *Repository) ClaimEligible(ctx context.Context, scope domain.Scope, now time.Time, limit int) ([]domain.ClaimedInvoice, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, pickSQL(scope, claimWorkspaceSQL, claimLegacySQL), scopeArgs(scope, now, limit))
	if err != nil {
		return nil, fmt.Errorf("claim eligible invoices: %w", err)
	}
	claimed, err := scanInvoices(rows)
	if err != nil {
		return nil, fmt.Errorf("claim eligible invoices: %w", err)
	}
	return claimed, nil
}

// PreviewEligible returns the invoices ClaimEligible would claim, without claiming them.
func (r *Repository) PreviewEligible(ctx context.Context, scope domain.Scope, now time.Time, limit int) ([]domain.ClaimedInvoice, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, pickSQL(scope, previewWorkspaceSQL, previewLegacySQL), scopeArgs(scope, now, limit))
	if err != nil {
		return nil, fmt.Errorf("preview eligible invoices: %w", err)
	}
	preview, err := scanInvoices(rows)
	if err != nil {
		return nil, fmt.Errorf("preview eligible invoices: %w", err)
	}
	return preview, nil
}

// SkipCounts are the eligible invoices a run did not claim.
type SkipCounts struct {
	MissingRecipient int
	Remaining        int
}

// CountSkipped counts eligible invoices still unclaimed in scope: those with
// no recipient email, and those with one (left over by the batch limit).
func (r *Repository) CountSkipped(ctx context.Context, scope domain.Scope, now time.Time) (SkipCounts, error) {
	if err := r.ready(); err != nil {
		return SkipCounts{}, err
	}
	if err := scope.Validate(); err != nil {
		return SkipCounts{}, err
	}

	var counts SkipCounts
	err := r.pool.QueryRow(ctx, pickSQL(scope, skippedWorkspaceSQL, skippedLegacySQL), scopeArgs(scope, now, 0)).
		Scan(&counts.MissingRecipient, &counts.Remaining)
	if err != nil {
		return SkipCounts{}, fmt.Errorf("count skipped invoices: %w", err)
	}
	return counts, nil
}

// ListScopesWithEligible returns every workspace and legacy account that has at
// least one eligible invoice at now.
func (r *Repository) ListScopesWithEligible(ctx context.Context, now time.Time) ([]domain.Scope, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, listScopesSQL, pgx.NamedArgs{"now": now.UTC()})
	if err != nil {
		return nil, fmt.Errorf("list reminder scopes: %w", err)
	}
	defer rows.Close()

	var scopes []domain.Scope
	for rows.Next() {
		var workspaceID, accountID *uuid.UUID
		if err := rows.Scan(&workspaceID, &accountID); err != nil {
			return nil, fmt.Errorf("scan reminder scope: %w", err)
		}
		switch {
		case workspaceID != nil:
			scopes = append(scopes, domain.WorkspaceScope(*workspaceID))
		case accountID != nil:
			scopes = append(scopes, domain.LegacyScope(*accountID))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reminder scopes: %w", err)
	}
	return scopes, nil
}

func scanInvoices(rows pgx.Rows) ([]domain.ClaimedInvoice, error) {
	defer rows.Close()

	var out []domain.ClaimedInvoice
	for rows.Next() {
		var (
			inv   domain.ClaimedInvoice
			level int16
			email *string
			name  *string
		)
		if err := rows.Scan(
			&inv.InvoiceID,
			&inv.Number,
			&inv.AmountCents,
			&inv.Currency,
			&inv.DueDate,
			&level,
			&inv.PreviousSentAt,
			&email,
			&name,
		); err != nil {
			return nil, err
		}
		inv.PreviousLevel = int(level)
		if email != nil {
			inv.RecipientEmail = *email
		}
		if name != nil {
			inv.RecipientName = *name
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
