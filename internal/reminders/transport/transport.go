package transport

import (
	"time"

	"billing_reminders_backend/internal/reminders/domain"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// TriggerRequest is the optional body of every trigger route.
type TriggerRequest struct {
	DryRun      bool       `json:"dryRun"`
	WorkspaceID *uuid.UUID `json:"workspaceId,omitempty"`
}

// ListRunsQuery binds ?limit=N on the run listing. Values above 100 are capped.
type ListRunsQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// RunSummary is the aggregate of one recorded run.
type RunSummary struct {
	RunID            uuid.UUID      `json:"runId"`
	Scope            string         `json:"scope"`
	Attempted        int            `json:"attempted"`
	Sent             int            `json:"sent"`
	Skipped          int            `json:"skipped"`
	Errors           int            `json:"errors"`
	SkippedBreakdown map[string]int `json:"skippedBreakdown"`
	DurationMs       int64          `json:"durationMs"`
}

// TriggerResponse is returned by every trigger route. Summary is set for a
// single-scope run, Runs for a fan-out.
type TriggerResponse struct {
	RanAt             time.Time    `json:"ranAt"`
	UpdatedCount      int          `json:"updatedCount"`
	UpdatedInvoiceIDs []uuid.UUID  `json:"updatedInvoiceIds"`
	DryRun            bool         `json:"dryRun"`
	Summary           *RunSummary  `json:"summary,omitempty"`
	Runs              []RunSummary `json:"runs,omitempty"`
}

// RunListItem is one row of the run listing.
type RunListItem struct {
	RunID            uuid.UUID           `json:"run_id"`
	RanAt            time.Time           `json:"ran_at"`
	Source           string              `json:"source"`
	DryRun           bool                `json:"dry_run"`
	Attempted        int                 `json:"attempted"`
	Sent             int                 `json:"sent"`
	Skipped          int                 `json:"skipped"`
	Errors           int                 `json:"errors"`
	ErrorItems       []domain.ErrorEntry `json:"error_items"`
	DurationMs       int64               `json:"duration_ms"`
	SkippedBreakdown map[string]int      `json:"skipped_breakdown"`
}

// RunListResponse wraps the run listing.
type RunListResponse struct {
	Items []RunListItem `json:"items"`
}

func breakdownJSON(in map[domain.SkipReason]int) map[string]int {
	out := make(map[string]int, len(in))
	for reason, n := range in {
		out[string(reason)] = n
	}
	return out
}

func scopeLabel(run domain.Run) string {
	switch {
	case run.WorkspaceID != nil:
		return domain.WorkspaceScope(*run.WorkspaceID).String()
	case run.AccountID != nil:
		return domain.LegacyScope(*run.AccountID).String()
	}
	return ""
}

// NewRunSummary maps a run aggregate to its summary.
func NewRunSummary(run domain.Run) RunSummary {
	return RunSummary{
		RunID:            run.ID,
		Scope:            scopeLabel(run),
		Attempted:        run.AttemptedCount,
		Sent:             run.SentCount,
		Skipped:          run.SkippedCount,
		Errors:           run.ErrorCount,
		SkippedBreakdown: breakdownJSON(run.SkippedBreakdown),
		DurationMs:       run.DurationMs,
	}
}

// NewTriggerResponse builds the response for a single-scope run.
func NewTriggerResponse(outcome domain.RunOutcome) TriggerResponse {
	summary := NewRunSummary(outcome.Run)
	ids := outcome.UpdatedInvoiceIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return TriggerResponse{
		RanAt:             outcome.Run.RanAt,
		UpdatedCount:      len(ids),
		UpdatedInvoiceIDs: ids,
		DryRun:            outcome.Run.DryRun,
		Summary:           &summary,
	}
}

// NewFanOutResponse builds the response for a trigger that ran every scope.
func NewFanOutResponse(ranAt time.Time, dryRun bool, outcomes []domain.RunOutcome) TriggerResponse {
	resp := TriggerResponse{
		RanAt:             ranAt,
		UpdatedInvoiceIDs: []uuid.UUID{},
		DryRun:            dryRun,
		Runs:              make([]RunSummary, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		resp.UpdatedInvoiceIDs = append(resp.UpdatedInvoiceIDs, o.UpdatedInvoiceIDs...)
		resp.Runs = append(resp.Runs, NewRunSummary(o.Run))
	}
	resp.UpdatedCount = len(resp.UpdatedInvoiceIDs)
	return resp
}

// NewRunListResponse maps recorded runs to the listing.
func NewRunListResponse(runs []domain.Run) RunListResponse {
	items := make([]RunListItem, 0, len(runs))
	for _, run := range runs {
		errs := run.Errors
		if errs == nil {
			errs = []domain.ErrorEntry{}
		}
		items = append(items, RunListItem{
			RunID:            run.ID,
			RanAt:            run.RanAt,
			Source:           string(run.TriggeredBy),
			DryRun:           run.DryRun,
			Attempted:        run.AttemptedCount,
			Sent:             run.SentCount,
			Skipped:          run.SkippedCount,
			Errors:           run.ErrorCount,
			ErrorItems:       errs,
			DurationMs:       run.DurationMs,
			SkippedBreakdown: breakdownJSON(run.SkippedBreakdown),
		})
	}
	return RunListResponse{Items: items}
}
