package webhook

import (
	"strings"
	"time"

	"billing_reminders_backend/internal/reminders/domain"
)

// Event types that mean a message we recorded as sent never reached the customer.
const (
	EventBounced        = "email.bounced"
	EventComplained     = "email.complained"
	EventFailed         = "email.failed"
	EventDeliveryFailed = "email.delivery_failed"
)

// Event is the provider's webhook envelope.
type Event struct {
	Type      string    `json:"type"`
	CreatedAt string    `json:"created_at"`
	Data      EventData `json:"data"`
}

// EventData carries the message id and whichever failure details the event type has.
type EventData struct {
	EmailID string   `json:"email_id"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Bounce  *struct {
		Type    string `json:"type"`
		SubType string `json:"subType"`
		Message string `json:"message"`
	} `json:"bounce,omitempty"`
	Failed *struct {
		Reason string `json:"reason"`
	} `json:"failed,omitempty"`
}

// IsFailureEvent reports whether eventType is one the reconciler acts on.
func IsFailureEvent(eventType string) bool {
	switch eventType {
	case EventBounced, EventComplained, EventFailed, EventDeliveryFailed:
		return true
	}
	return false
}

// ExtractFailure maps a provider event to a delivery failure. ok is false when
// the event is not a failure or carries no message id.
func ExtractFailure(provider string, ev Event) (domain.DeliveryFailure, bool) {
	eventType := strings.ToLower(strings.TrimSpace(ev.Type))
	if !IsFailureEvent(eventType) {
		return domain.DeliveryFailure{}, false
	}
	messageID := strings.TrimSpace(ev.Data.EmailID)
	if messageID == "" {
		return domain.DeliveryFailure{}, false
	}

	f := domain.DeliveryFailure{
		Provider:  provider,
		MessageID: messageID,
		Code:      strings.TrimPrefix(eventType, "email."),
		Type:      errorTypeFor(eventType),
		Message:   failureMessage(eventType, ev.Data),
		At:        parseEventTime(ev.CreatedAt),
	}
	if b := ev.Data.Bounce; b != nil && b.Type != "" {
		f.Code = f.Code + ":" + strings.ToLower(b.Type)
	}
	return f, true
}

func errorTypeFor(eventType string) string {
	switch eventType {
	case EventBounced:
		return domain.ErrorTypeBounce
	case EventComplained:
		return domain.ErrorTypeComplaint
	default:
		return domain.ErrorTypeProvider
	}
}

func failureMessage(eventType string, data EventData) string {
	if data.Bounce != nil {
		if msg := strings.TrimSpace(data.Bounce.Message); msg != "" {
			return msg
		}
	}
	if data.Failed != nil {
		if reason := strings.TrimSpace(data.Failed.Reason); reason != "" {
			return reason
		}
	}
	return eventType + " reported by provider"
}

// parseEventTime returns the zero time for anything unparseable; the reconciler
// then stamps the failure with the receive time.
func parseEventTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02 15:04:05.999999Z07:00"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
