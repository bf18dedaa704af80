// Package service is the reminder engine: it claims eligible invoices, dispatches
// reminders, records the run and applies delivery failures reported later.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/internal/reminders/repository"
	"billing_reminders_backend/platform/apperr"
	"billing_reminders_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultBatchLimit = 200
	DefaultRunsLimit  = 20
	MaxRunsLimit      = 100
)

// InvoiceStore selects and claims eligible invoices.
type InvoiceStore interface {
	ClaimEligible(ctx context.Context, scope domain.Scope, now time.Time, limit int) ([]domain.ClaimedInvoice, error)
	PreviewEligible(ctx context.Context, scope domain.Scope, now time.Time, limit int) ([]domain.ClaimedInvoice, error)
	CountSkipped(ctx context.Context, scope domain.Scope, now time.Time) (repository.SkipCounts, error)
	ListScopesWithEligible(ctx context.Context, now time.Time) ([]domain.Scope, error)
}

// RunStore persists run audit records.
type RunStore interface {
	CheckRecordable(ctx context.Context, scope domain.Scope) error
	Record(ctx context.Context, outcome domain.RunOutcome) error
	ListRuns(ctx context.Context, scope domain.Scope, limit int) ([]domain.Run, error)
}

// RunRequest describes one trigger.
type RunRequest struct {
	Scope       domain.Scope
	TriggeredBy domain.TriggerSource
	ActorEmail  string
	DryRun      bool
}

// Service is the engine entry point shared by every trigger.
type Service struct {
	invoices   InvoiceStore
	runs       RunStore
	dispatcher *Dispatcher
	log        *logger.Logger
	batchLimit int
	now        func() time.Time
}

// New creates the engine. batchLimit caps how many invoices one run claims.
func New(invoices InvoiceStore, runs RunStore, dispatcher *Dispatcher, log *logger.Logger, batchLimit int) *Service {
	if batchLimit < 1 {
		batchLimit = defaultBatchLimit
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		invoices:   invoices,
		runs:       runs,
		dispatcher: dispatcher,
		log:        log,
		batchLimit: batchLimit,
		now:        time.Now,
	}
}

// SetClock overrides the trigger time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Run executes one trigger for one scope: claim, dispatch, record. Per-recipient
// failures are recorded as error items; only store failures fail the run.
func (s *Service) Run(ctx context.Context, req RunRequest) (domain.RunOutcome, error) {
	if err := req.Scope.Validate(); err != nil {
		return domain.RunOutcome{}, apperr.Validation(err.Error())
	}
	if !req.TriggeredBy.Valid() {
		return domain.RunOutcome{}, apperr.Validation(fmt.Sprintf("unknown trigger source %q", req.TriggeredBy))
	}

	// Refuse before claiming: a claim without a recordable run spends levels silently.
	if err := s.runs.CheckRecordable(ctx, req.Scope); err != nil {
		return domain.RunOutcome{}, err
	}

	started := time.Now()
	now := s.now().UTC()

	var (
		items     []domain.ItemResult
		updated   []uuid.UUID
		breakdown = make(map[domain.SkipReason]int)
	)

	if req.DryRun {
		preview, err := s.invoices.PreviewEligible(ctx, req.Scope, now, s.batchLimit)
		if err != nil {
			return domain.RunOutcome{}, fmt.Errorf("preview reminders: %w", err)
		}
		addSkip(breakdown, domain.SkipDryRun, len(preview))
		s.countSkipped(ctx, req.Scope, now, len(preview), breakdown)
	} else {
		claimed, err := s.invoices.ClaimEligible(ctx, req.Scope, now, s.batchLimit)
		if err != nil {
			return domain.RunOutcome{}, fmt.Errorf("claim reminders: %w", err)
		}
		// Claims are committed; sends must finish even if the caller goes away.
		detached := context.WithoutCancel(ctx)
		items = s.dispatcher.Dispatch(detached, claimed)
		updated = make([]uuid.UUID, 0, len(claimed))
		for _, inv := range claimed {
			updated = append(updated, inv.InvoiceID)
		}
		s.countSkipped(detached, req.Scope, now, len(claimed), breakdown)
	}

	attempted, sent, failed := domain.CountOutcomes(items)
	skipped := 0
	for _, n := range breakdown {
		skipped += n
	}

	run := domain.Run{
		ID:               uuid.New(),
		ActorEmail:       req.ActorEmail,
		RanAt:            now,
		TriggeredBy:      req.TriggeredBy,
		DryRun:           req.DryRun,
		AttemptedCount:   attempted,
		SentCount:        sent,
		SkippedCount:     skipped,
		ErrorCount:       failed,
		SkippedBreakdown: breakdown,
		DurationMs:       time.Since(started).Milliseconds(),
		Errors:           domain.SampleFromItems(items),
	}
	if req.Scope.IsLegacy() {
		account := req.Scope.AccountID
		run.AccountID = &account
	} else {
		workspace := req.Scope.WorkspaceID
		run.WorkspaceID = &workspace
	}

	outcome := domain.RunOutcome{Run: run, Items: items, UpdatedInvoiceIDs: updated}

	// The claim is already committed; record even if the caller has gone away.
	if err := s.runs.Record(context.WithoutCancel(ctx), outcome); err != nil {
		s.log.DatabaseError("record_reminder_run", err)
		return domain.RunOutcome{}, fmt.Errorf("record reminder run: %w", err)
	}

	s.log.WithContext(ctx).ReminderRun(run.ID.String(), string(run.TriggeredBy), run.DryRun,
		run.AttemptedCount, run.SentCount, run.SkippedCount, run.ErrorCount, run.DurationMs)
	return outcome, nil
}

// countSkipped adds missing-recipient and batch-limit skips. Leftovers only count
// as batch_limit when this run filled its batch; otherwise they are rows a
// concurrent trigger holds. A failed count is logged, not fatal, because the
// claim has already happened.
func (s *Service) countSkipped(ctx context.Context, scope domain.Scope, now time.Time, taken int, breakdown map[domain.SkipReason]int) {
	counts, err := s.invoices.CountSkipped(ctx, scope, now)
	if err != nil {
		s.log.WithContext(ctx).Warn("count skipped reminders failed", "scope", scope.String(), "error", err)
		return
	}
	addSkip(breakdown, domain.SkipMissingRecipient, counts.MissingRecipient)
	if taken >= s.batchLimit {
		remaining := counts.Remaining
		if breakdown[domain.SkipDryRun] > 0 {
			remaining -= taken
		}
		addSkip(breakdown, domain.SkipBatchLimit, remaining)
	}
}

func addSkip(breakdown map[domain.SkipReason]int, reason domain.SkipReason, n int) {
	if n > 0 {
		breakdown[reason] += n
	}
}

// RunAllScopes fans a trigger out over every workspace and legacy account with
// eligible invoices. A failing scope does not stop the others; migration errors
// and a fan-out where every scope failed are returned.
func (s *Service) RunAllScopes(ctx context.Context, source domain.TriggerSource, dryRun bool) ([]domain.RunOutcome, error) {
	scopes, err := s.invoices.ListScopesWithEligible(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list reminder scopes: %w", err)
	}

	outcomes := make([]domain.RunOutcome, 0, len(scopes))
	var failures []error
	for _, scope := range scopes {
		outcome, err := s.Run(ctx, RunRequest{Scope: scope, TriggeredBy: source, DryRun: dryRun})
		if err != nil {
			if apperr.Is(err, apperr.KindMigrationRequired) {
				return outcomes, err
			}
			s.log.WithContext(ctx).Error("reminder run failed", "scope", scope.String(), "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", scope, err))
			continue
		}
		outcomes = append(outcomes, outcome)
	}

	if len(failures) > 0 && len(outcomes) == 0 {
		return nil, errors.Join(failures...)
	}
	return outcomes, nil
}

// ListRuns returns the most recent runs for scope. limit defaults to 20 and is capped at 100.
func (s *Service) ListRuns(ctx context.Context, scope domain.Scope, limit int) ([]domain.Run, error) {
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if limit < 1 {
		limit = DefaultRunsLimit
	}
	if limit > MaxRunsLimit {
		limit = MaxRunsLimit
	}
	runs, err := s.runs.ListRuns(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("list reminder runs: %w", err)
	}
	return runs, nil
}
