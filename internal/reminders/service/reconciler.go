package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/platform/logger"
)

// DeliveryStore applies a delivery failure to recorded run items.
type DeliveryStore interface {
	ApplyDeliveryFailure(ctx context.Context, f domain.DeliveryFailure) (domain.ReconcileResult, error)
}

// Reconciler turns provider delivery-failure reports into item and run updates.
type Reconciler struct {
	store DeliveryStore
	log   *logger.Logger
	now   func() time.Time
}

func NewReconciler(store DeliveryStore, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Discard()
	}
	return &Reconciler{store: store, log: log, now: time.Now}
}

// Reconcile marks the items sent as (provider, messageID) failed and recomputes
// their runs. An unknown or already failed message is not an error.
func (r *Reconciler) Reconcile(ctx context.Context, f domain.DeliveryFailure) (domain.ReconcileResult, error) {
	f.Provider = strings.TrimSpace(f.Provider)
	f.MessageID = strings.TrimSpace(f.MessageID)
	if f.Provider == "" || f.MessageID == "" {
		return domain.ReconcileResult{}, nil
	}
	if f.Type == "" {
		f.Type = domain.ErrorTypeBounce
	}
	if f.At.IsZero() {
		f.At = r.now().UTC()
	}

	res, err := r.store.ApplyDeliveryFailure(ctx, f)
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("reconcile delivery failure: %w", err)
	}
	r.log.WithContext(ctx).Info("delivery failure reconciled",
		"provider", f.Provider,
		"message_id", f.MessageID,
		"code", f.Code,
		"updated_runs", res.UpdatedRuns,
		"updated_items", res.UpdatedItems,
	)
	return res, nil
}
