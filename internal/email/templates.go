package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"billing_reminders_backend/platform/sanitize"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

// ReminderData is the input for one invoice reminder.
type ReminderData struct {
	Level         int
	CustomerName  string
	InvoiceNumber string
	AmountCents   int64
	Currency      string
	DueDate       time.Time
	PayURL        string
}

type invoiceReminderEmailData struct {
	baseEmailData
	Level         int
	CustomerName  string
	InvoiceNumber string
	Amount        string
	DueDate       string
	PayURL        string
}

// RenderReminder renders subject, HTML and plain-text bodies for an invoice reminder.
func RenderReminder(data ReminderData) (Message, error) {
	if data.Level < 1 || data.Level > 3 {
		return Message{}, fmt.Errorf("render reminder: unsupported level %d", data.Level)
	}
	number := sanitize.HeaderValue(data.InvoiceNumber)
	subject := fmt.Sprintf(reminderSubjectFormat(data.Level), number)

	view := invoiceReminderEmailData{
		baseEmailData: baseEmailData{
			Title:    subject,
			Heading:  subject,
			CTALabel: "Pay invoice",
			CTAURL:   data.PayURL,
		},
		Level:         data.Level,
		CustomerName:  sanitize.Text(data.CustomerName),
		InvoiceNumber: number,
		Amount:        FormatAmount(data.AmountCents, data.Currency),
		DueDate:       data.DueDate.Format("2 January 2006"),
		PayURL:        data.PayURL,
	}

	html, err := renderEmailTemplate("invoice_reminder.html", view)
	if err != nil {
		return Message{}, err
	}
	text, err := renderTextTemplate("invoice_reminder.txt", view)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, HTML: html, Text: text}, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderTextTemplate(name string, data any) (string, error) {
	tmpl, err := texttemplate.ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse text template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute text template %s: %w", name, err)
	}
	return buf.String(), nil
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders minor units with the currency symbol and the currency's
// standard number of decimals. Unknown codes fall back to the raw code.
func FormatAmount(cents int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %.2f", code, float64(cents)/100)
	}

	scale, _ := currency.Standard.Rounding(unit)
	divisor := 1.0
	for i := 0; i < scale; i++ {
		divisor *= 10
	}
	symbol := amountPrinter.Sprint(currency.Symbol(unit))
	return symbol + " " + amountPrinter.Sprintf(fmt.Sprintf("%%.%df", scale), float64(cents)/divisor)
}
