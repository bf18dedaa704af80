// Package domain holds the reminder engine's core types and the escalation policy.
// It has no dependencies on storage or transport.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"
)

// InvoiceStatus mirrors invoices.status. Only pending invoices receive reminders.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// TriggerSource records what started a run.
type TriggerSource string

const (
	TriggerManual TriggerSource = "manual"
	TriggerCron   TriggerSource = "cron"
	TriggerDev    TriggerSource = "dev"
)

// Valid reports whether s is one of the known trigger sources.
func (s TriggerSource) Valid() bool {
	switch s {
	case TriggerManual, TriggerCron, TriggerDev:
		return true
	}
	return false
}

// ItemStatus is the outcome of one attempted reminder. The only transition is sent -> error.
type ItemStatus string

const (
	ItemSent  ItemStatus = "sent"
	ItemError ItemStatus = "error"
)

// SkipReason explains why an eligible invoice was not attempted in a run.
type SkipReason string

const (
	SkipMissingRecipient SkipReason = "missing_recipient"
	SkipBatchLimit       SkipReason = "batch_limit"
	SkipDryRun           SkipReason = "dry_run"
)

// Error types recorded on failed items.
const (
	ErrorTypeValidation = "validation"
	ErrorTypeRender     = "render"
	ErrorTypeProvider   = "provider"
	ErrorTypeTransport  = "transport"
	ErrorTypeBounce     = "bounce"
	ErrorTypeComplaint  = "complaint"
)

var ErrInvalidScope = errors.New("reminder scope must name exactly one workspace or legacy account")

// Scope is the tenant boundary of a run: a workspace, or a legacy account for
// deployments that predate workspaces.
type Scope struct {
	WorkspaceID uuid.UUID
	AccountID   uuid.UUID
}

// WorkspaceScope scopes a run to a workspace.
func WorkspaceScope(id uuid.UUID) Scope { return Scope{WorkspaceID: id} }

// LegacyScope scopes a run to an account-owned invoice set without a workspace.
func LegacyScope(accountID uuid.UUID) Scope { return Scope{AccountID: accountID} }

// IsLegacy reports whether the scope is account-based.
func (s Scope) IsLegacy() bool { return s.WorkspaceID == uuid.Nil }

// Validate checks that exactly one id is set.
func (s Scope) Validate() error {
	if (s.WorkspaceID == uuid.Nil) == (s.AccountID == uuid.Nil) {
		return ErrInvalidScope
	}
	return nil
}

// Key is the id that the scope filters on.
func (s Scope) Key() uuid.UUID {
	if s.IsLegacy() {
		return s.AccountID
	}
	return s.WorkspaceID
}

func (s Scope) String() string {
	if s.IsLegacy() {
		return "account:" + s.AccountID.String()
	}
	return "workspace:" + s.WorkspaceID.String()
}

// ClaimedInvoice is the pre-claim state of an invoice whose level the claim just advanced.
type ClaimedInvoice struct {
	InvoiceID      uuid.UUID
	Number         string
	AmountCents    int64
	Currency       string
	DueDate        time.Time
	PreviousLevel  int
	PreviousSentAt *time.Time
	RecipientEmail string
	RecipientName  string
}

// Level is the escalation level this reminder represents (1..3).
func (c ClaimedInvoice) Level() int { return c.PreviousLevel + 1 }

// ItemResult is the immediate outcome of one dispatch attempt.
type ItemResult struct {
	InvoiceID         uuid.UUID
	RecipientEmail    string
	Provider          string
	ProviderMessageID *string
	Status            ItemStatus
	ErrorCode         string
	ErrorType         string
	ErrorMessage      string
	At                time.Time
}

// NormalizeEmail lower-cases and trims a recipient address and converts an
// internationalized domain to its ASCII form. A domain idna rejects is left
// as is so address validation reports it.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	domain, err := idna.Lookup.ToASCII(email[at+1:])
	if err != nil {
		return email
	}
	return email[:at+1] + domain
}

// Run is the aggregate audit record of one trigger execution.
type Run struct {
	ID               uuid.UUID
	WorkspaceID      *uuid.UUID
	AccountID        *uuid.UUID
	ActorEmail       string
	RanAt            time.Time
	TriggeredBy      TriggerSource
	DryRun           bool
	AttemptedCount   int
	SentCount        int
	SkippedCount     int
	ErrorCount       int
	SkippedBreakdown map[SkipReason]int
	DurationMs       int64
	Errors           []ErrorEntry
}

// RunOutcome bundles a run with the items it attempted and the invoices it touched.
type RunOutcome struct {
	Run               Run
	Items             []ItemResult
	UpdatedInvoiceIDs []uuid.UUID
}

// DeliveryFailure is a provider's asynchronous report that a message it accepted
// was not delivered.
type DeliveryFailure struct {
	Provider  string
	MessageID string
	Code      string
	Type      string
	Message   string
	At        time.Time
}

// ReconcileResult counts what a delivery failure changed. Zero/zero means the
// message id was unknown or already marked failed.
type ReconcileResult struct {
	UpdatedRuns  int
	UpdatedItems int
}
