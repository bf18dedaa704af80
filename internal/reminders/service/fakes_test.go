package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"billing_reminders_backend/internal/email"
	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/internal/reminders/repository"

	"github.com/google/uuid"
)

type fakeInvoice struct {
	id        uuid.UUID
	workspace uuid.UUID
	account   uuid.UUID
	status    domain.InvoiceStatus
	due       *time.Time
	level     int
	lastSent  *time.Time
	email     string
}

func (f *fakeInvoice) inScope(scope domain.Scope) bool {
	if scope.IsLegacy() {
		return f.workspace == uuid.Nil && f.account == scope.AccountID
	}
	return f.workspace == scope.WorkspaceID
}

func (f *fakeInvoice) eligible(now time.Time) bool {
	return domain.IsEligible(f.status, f.due, f.level, f.lastSent, now)
}

func (f *fakeInvoice) snapshot() domain.ClaimedInvoice {
	return domain.ClaimedInvoice{
		InvoiceID:      f.id,
		Number:         "INV-" + f.id.String()[:4],
		AmountCents:    10000,
		Currency:       "EUR",
		DueDate:        *f.due,
		PreviousLevel:  f.level,
		PreviousSentAt: f.lastSent,
		RecipientEmail: f.email,
		RecipientName:  "Customer",
	}
}

// fakeStore is an in-memory stand-in for the Postgres repository. The mutex
// plays the role of the row locks taken by the claim statement.
type fakeStore struct {
	mu            sync.Mutex
	invoices      []*fakeInvoice
	outcomes      []domain.RunOutcome
	recordErr     error
	recordableErr error
	lastRunsLimit int
}

func (s *fakeStore) add(inv *fakeInvoice) *fakeInvoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.id == uuid.Nil {
		inv.id = uuid.New()
	}
	if inv.status == "" {
		inv.status = domain.InvoiceStatusPending
	}
	s.invoices = append(s.invoices, inv)
	return inv
}

func (s *fakeStore) level(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.id == id {
			return inv.level
		}
	}
	return -1
}

func (s *fakeStore) ClaimEligible(_ context.Context, scope domain.Scope, now time.Time, limit int) ([]domain.ClaimedInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ClaimedInvoice
	for _, inv := range s.invoices {
		if len(out) >= limit {
			break
		}
		if !inv.inScope(scope) || !inv.eligible(now) || inv.email == "" {
			continue
		}
		out = append(out, inv.snapshot())
		sentAt := now
		inv.level++
		inv.lastSent = &sentAt
	}
	return out, nil
}

func (s *fakeStore) PreviewEligible(_ context.Context, scope domain.Scope, now time.Time, limit int) ([]domain.ClaimedInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ClaimedInvoice
	for _, inv := range s.invoices {
		if len(out) >= limit {
			break
		}
		if inv.inScope(scope) && inv.eligible(now) && inv.email != "" {
			out = append(out, inv.snapshot())
		}
	}
	return out, nil
}

func (s *fakeStore) CountSkipped(_ context.Context, scope domain.Scope, now time.Time) (repository.SkipCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts repository.SkipCounts
	for _, inv := range s.invoices {
		if !inv.inScope(scope) || !inv.eligible(now) {
			continue
		}
		if inv.email == "" {
			counts.MissingRecipient++
		} else {
			counts.Remaining++
		}
	}
	return counts, nil
}

func (s *fakeStore) ListScopesWithEligible(_ context.Context, now time.Time) ([]domain.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[domain.Scope]bool)
	var scopes []domain.Scope
	for _, inv := range s.invoices {
		if !inv.eligible(now) {
			continue
		}
		scope := domain.WorkspaceScope(inv.workspace)
		if inv.workspace == uuid.Nil {
			scope = domain.LegacyScope(inv.account)
		}
		if !seen[scope] {
			seen[scope] = true
			scopes = append(scopes, scope)
		}
	}
	return scopes, nil
}

func (s *fakeStore) CheckRecordable(context.Context, domain.Scope) error {
	return s.recordableErr
}

func (s *fakeStore) Record(_ context.Context, outcome domain.RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	outcome.Items = append([]domain.ItemResult(nil), outcome.Items...)
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

func (s *fakeStore) ListRuns(_ context.Context, scope domain.Scope, limit int) ([]domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunsLimit = limit
	var runs []domain.Run
	for _, o := range s.outcomes {
		if o.Run.WorkspaceID != nil && *o.Run.WorkspaceID == scope.WorkspaceID {
			runs = append(runs, o.Run)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].RanAt.After(runs[j].RanAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *fakeStore) ApplyDeliveryFailure(_ context.Context, f domain.DeliveryFailure) (domain.ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res domain.ReconcileResult
	for i := range s.outcomes {
		o := &s.outcomes[i]
		touched := false
		for j := range o.Items {
			item := &o.Items[j]
			if item.ProviderMessageID == nil || item.Status == domain.ItemError {
				continue
			}
			if !strings.EqualFold(item.Provider, f.Provider) || !strings.EqualFold(*item.ProviderMessageID, f.MessageID) {
				continue
			}
			item.Status = domain.ItemError
			item.ErrorCode = f.Code
			item.ErrorType = f.Type
			item.ErrorMessage = f.Message
			item.At = f.At
			res.UpdatedItems++
			touched = true
		}
		if touched {
			res.UpdatedRuns++
			o.Run.AttemptedCount, o.Run.SentCount, o.Run.ErrorCount = domain.CountOutcomes(o.Items)
			o.Run.Errors = domain.SampleFromItems(o.Items)
		}
	}
	return res, nil
}

type fakeSender struct {
	mu       sync.Mutex
	failures map[string]error
	sent     []email.Message
	seq      int
	// afterSend runs once a message is accepted, outside the lock.
	afterSend func()
}

func (f *fakeSender) Provider() string { return "resend" }

func (f *fakeSender) Send(ctx context.Context, msg email.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	if err, ok := f.failures[msg.To]; ok {
		f.mu.Unlock()
		return "", err
	}
	f.seq++
	f.sent = append(f.sent, msg)
	id := fmt.Sprintf("msg-%d", f.seq)
	hook := f.afterSend
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return id, nil
}

type fakeLinker struct{}

func (fakeLinker) Link(invoiceID uuid.UUID, level int) (string, error) {
	return fmt.Sprintf("https://app.example.com/pay/%s-%d", invoiceID, level), nil
}
