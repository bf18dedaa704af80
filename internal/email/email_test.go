package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"billing_reminders_backend/internal/reminders/domain"
)

func TestRenderReminderEscalatesSubject(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := map[int]string{
		1: "Reminder: invoice INV-7 is overdue",
		2: "Second reminder: invoice INV-7 is still unpaid",
		3: "Final reminder: invoice INV-7",
	}
	for level, subject := range cases {
		msg, err := RenderReminder(ReminderData{
			Level:         level,
			CustomerName:  "Acme",
			InvoiceNumber: "INV-7",
			AmountCents:   123450,
			Currency:      "EUR",
			DueDate:       due,
			PayURL:        "https://app.example.com/pay/abc",
		})
		if err != nil {
			t.Fatalf("level %d: render failed: %v", level, err)
		}
		if msg.Subject != subject {
			t.Fatalf("level %d: expected subject %q, got %q", level, subject, msg.Subject)
		}
		if !strings.Contains(msg.HTML, "INV-7") || !strings.Contains(msg.HTML, "https://app.example.com/pay/abc") {
			t.Fatalf("level %d: html missing invoice number or pay link", level)
		}
		if !strings.Contains(msg.Text, "1 January 2024") {
			t.Fatalf("level %d: text missing due date: %q", level, msg.Text)
		}
	}
}

func TestRenderReminderRejectsLevelZero(t *testing.T) {
	if _, err := RenderReminder(ReminderData{Level: 0, InvoiceNumber: "INV-1"}); err == nil {
		t.Fatal("expected error for level 0")
	}
}

func TestRenderReminderSanitizesCustomerText(t *testing.T) {
	msg, err := RenderReminder(ReminderData{
		Level:         1,
		CustomerName:  "<b>Acme</b>\n B.V.",
		InvoiceNumber: "INV-9\r\nBcc: someone@example.com",
		AmountCents:   100,
		Currency:      "EUR",
		DueDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PayURL:        "https://app.example.com/pay/abc",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		t.Fatalf("subject carries a line break: %q", msg.Subject)
	}
	if strings.Contains(msg.Text, "<b>") || !strings.Contains(msg.Text, "Acme B.V.") {
		t.Fatalf("text part not sanitized: %q", msg.Text)
	}
}

func TestFormatAmountUnknownCurrency(t *testing.T) {
	if got := FormatAmount(1050, "zzz1"); got != "ZZZ1 10.50" {
		t.Fatalf("unexpected fallback formatting %q", got)
	}
}

func TestResendSenderReturnsMessageID(t *testing.T) {
	var got resendEmailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	sender := NewResendSender(srv.URL, "key-1", "Billing", "billing@example.com")
	id, err := sender.Send(context.Background(), Message{To: "a@example.com", Subject: "s", HTML: "<p>h</p>"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if id != "msg_123" {
		t.Fatalf("expected msg_123, got %q", id)
	}
	if got.From != "Billing <billing@example.com>" || len(got.To) != 1 || got.To[0] != "a@example.com" {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestResendSenderClassifiesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid to"}`))
	}))
	defer srv.Close()

	sender := NewResendSender(srv.URL, "key-1", "", "billing@example.com")
	_, err := sender.Send(context.Background(), Message{To: "bad", Subject: "s", HTML: "h"})

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected SendError, got %v", err)
	}
	if sendErr.Type != domain.ErrorTypeValidation || sendErr.Code != "validation_error" {
		t.Fatalf("unexpected classification: %+v", sendErr)
	}
}

func TestResendSenderTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewResendSender(url, "k", "", "billing@example.com").Send(context.Background(), Message{To: "a@example.com"})
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Type != domain.ErrorTypeTransport {
		t.Fatalf("expected transport SendError, got %v", err)
	}
}

func TestNoopSenderProducesUniqueIDs(t *testing.T) {
	a, _ := NoopSender{}.Send(context.Background(), Message{})
	b, _ := NoopSender{}.Send(context.Background(), Message{})
	if a == b || !strings.HasPrefix(a, "noop-") {
		t.Fatalf("unexpected noop ids %q %q", a, b)
	}
}
