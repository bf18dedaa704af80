// Package email is the transactional email collaborator of the reminder engine.
// A Sender delivers one rendered message and returns the provider's message id,
// which is later used to correlate delivery webhooks.
package email

import (
	"context"
	"fmt"

	"billing_reminders_backend/platform/config"

	"github.com/google/uuid"
)

// Provider names recorded on run items. Webhooks are matched by (provider, message id).
const (
	ProviderResend = "resend"
	ProviderSMTP   = "smtp"
	ProviderNoop   = "noop"
)

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages through one provider.
type Sender interface {
	Provider() string
	Send(ctx context.Context, msg Message) (providerMessageID string, err error)
}

// SendError is a classified delivery failure. Type is one of the domain error
// types (provider, transport, validation); Code is provider specific.
type SendError struct {
	Type    string
	Code    string
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *SendError) Unwrap() error { return e.Err }

// NoopSender accepts every message without delivering it.
type NoopSender struct{}

func (NoopSender) Provider() string { return ProviderNoop }

func (NoopSender) Send(context.Context, Message) (string, error) {
	return "noop-" + uuid.NewString(), nil
}

// NewSender builds the sender selected by EMAIL_PROVIDER.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	switch cfg.GetEmailProvider() {
	case ProviderResend:
		return NewResendSender(cfg.GetResendBaseURL(), cfg.GetResendAPIKey(), cfg.GetEmailFromName(), cfg.GetEmailFromAddress()), nil
	case ProviderSMTP:
		return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName()), nil
	case ProviderNoop, "":
		return NoopSender{}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.GetEmailProvider())
	}
}
