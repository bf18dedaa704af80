package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"billing_reminders_backend/internal/reminders/domain"
)

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	baseURL   string
	apiKey    string
	fromName  string
	fromEmail string
	client    *http.Client
}

type resendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type resendEmailResponse struct {
	ID string `json:"id"`
}

type resendErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func NewResendSender(baseURL, apiKey, fromName, fromEmail string) *ResendSender {
	return &ResendSender{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		fromName:  fromName,
		fromEmail: fromEmail,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *ResendSender) Provider() string { return ProviderResend }

func (r *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	from := r.fromEmail
	if r.fromName != "" {
		from = fmt.Sprintf("%s <%s>", r.fromName, r.fromEmail)
	}
	body, err := json.Marshal(resendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &SendError{Type: domain.ErrorTypeTransport, Code: "request_failed", Message: err.Error(), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyResendError(resp.StatusCode, data)
	}

	var out resendEmailResponse
	if err := json.Unmarshal(data, &out); err != nil || out.ID == "" {
		return "", &SendError{Type: domain.ErrorTypeProvider, Code: "invalid_response", Message: "resend response missing message id"}
	}
	return out.ID, nil
}

func classifyResendError(status int, body []byte) *SendError {
	var apiErr resendErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	code := apiErr.Name
	if code == "" {
		code = strconv.Itoa(status)
	}
	message := apiErr.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}

	errType := domain.ErrorTypeProvider
	if status == http.StatusUnprocessableEntity || code == "validation_error" {
		errType = domain.ErrorTypeValidation
	}
	return &SendError{Type: errType, Code: code, Message: fmt.Sprintf("resend send failed: status %d: %s", status, message)}
}
