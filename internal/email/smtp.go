package email

import (
	"context"
	"net"
	"strings"
	"time"

	"billing_reminders_backend/internal/reminders/domain"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender delivers over SMTP via go-mail. The generated Message-ID header is
// the provider message id.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) Provider() string { return ProviderSMTP }

func (s *SMTPSender) Send(ctx context.Context, m Message) (string, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return "", &SendError{Type: domain.ErrorTypeValidation, Code: "invalid_sender", Message: err.Error(), Err: err}
	}
	if err := msg.To(m.To); err != nil {
		return "", &SendError{Type: domain.ErrorTypeValidation, Code: "invalid_recipient", Message: err.Error(), Err: err}
	}
	msg.Subject(m.Subject)
	msg.SetMessageID()
	if m.Text != "" {
		msg.SetBodyString(gomail.TypeTextPlain, m.Text)
		msg.AddAlternativeString(gomail.TypeTextHTML, m.HTML)
	} else {
		msg.SetBodyString(gomail.TypeTextHTML, m.HTML)
	}

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return "", &SendError{Type: domain.ErrorTypeTransport, Code: "client_setup", Message: err.Error(), Err: err}
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", &SendError{Type: domain.ErrorTypeTransport, Code: "smtp_send", Message: err.Error(), Err: err}
	}

	return strings.Trim(msg.GetMessageID(), "<>"), nil
}
