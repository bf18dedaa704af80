package service

import (
	"context"
	"errors"
	"time"

	"billing_reminders_backend/internal/email"
	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/platform/logger"
	"billing_reminders_backend/platform/validator"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PayLinker produces the signed payment link embedded in a reminder.
type PayLinker interface {
	Link(invoiceID uuid.UUID, level int) (string, error)
}

// Dispatcher sends one reminder per claimed invoice. It never fails as a whole:
// each invoice yields exactly one item result.
type Dispatcher struct {
	sender      email.Sender
	links       PayLinker
	validate    *validator.Validator
	concurrency int
	log         *logger.Logger
	now         func() time.Time
}

func NewDispatcher(sender email.Sender, links PayLinker, val *validator.Validator, concurrency int, log *logger.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if val == nil {
		val = validator.New()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{
		sender:      sender,
		links:       links,
		validate:    val,
		concurrency: concurrency,
		log:         log,
		now:         time.Now,
	}
}

// Dispatch returns one result per invoice, in claim order.
func (d *Dispatcher) Dispatch(ctx context.Context, invoices []domain.ClaimedInvoice) []domain.ItemResult {
	results := make([]domain.ItemResult, len(invoices))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, inv := range invoices {
		g.Go(func() error {
			results[i] = d.dispatchOne(ctx, inv)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, inv domain.ClaimedInvoice) domain.ItemResult {
	recipient := domain.NormalizeEmail(inv.RecipientEmail)
	result := domain.ItemResult{
		InvoiceID:      inv.InvoiceID,
		RecipientEmail: recipient,
		Provider:       d.sender.Provider(),
	}
	fail := func(errType, code, message string) domain.ItemResult {
		result.Status = domain.ItemError
		result.ErrorType = errType
		result.ErrorCode = code
		result.ErrorMessage = message
		result.At = d.now().UTC()
		d.log.WithContext(ctx).Warn("reminder dispatch failed",
			"invoice_id", inv.InvoiceID.String(),
			"level", inv.Level(),
			"error_type", errType,
			"error_code", code,
			"error", message,
		)
		return result
	}

	if err := d.validate.Email(recipient); err != nil {
		return fail(domain.ErrorTypeValidation, "invalid_recipient", "recipient email is not valid")
	}

	payURL, err := d.links.Link(inv.InvoiceID, inv.Level())
	if err != nil {
		return fail(domain.ErrorTypeRender, "pay_link", err.Error())
	}

	msg, err := email.RenderReminder(email.ReminderData{
		Level:         inv.Level(),
		CustomerName:  inv.RecipientName,
		InvoiceNumber: inv.Number,
		AmountCents:   inv.AmountCents,
		Currency:      inv.Currency,
		DueDate:       inv.DueDate,
		PayURL:        payURL,
	})
	if err != nil {
		return fail(domain.ErrorTypeRender, "template", err.Error())
	}
	msg.To = recipient

	messageID, err := d.sender.Send(ctx, msg)
	if err != nil {
		var sendErr *email.SendError
		if errors.As(err, &sendErr) {
			return fail(sendErr.Type, sendErr.Code, sendErr.Message)
		}
		return fail(domain.ErrorTypeTransport, "send_failed", err.Error())
	}

	result.Status = domain.ItemSent
	result.ProviderMessageID = &messageID
	result.At = d.now().UTC()
	return result
}
