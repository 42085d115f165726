// Package mail delivers notification emails.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/charmbracelet/log"
	gomail "github.com/wneessen/go-mail"
)

// Sender sends a single HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Config carries SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg    Config
	client *gomail.Client
}

// NewSMTPSender constructs an SMTPSender. The connection is opened per send.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{cfg: cfg, client: client}, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)
	return s.client.DialAndSendWithContext(ctx, msg)
}

// NewSender returns an SMTPSender when enabled is set and a LogSender otherwise.
func NewSender(enabled bool, cfg Config, logger *log.Logger) (Sender, error) {
	if !enabled {
		return LogSender{Logger: logger}, nil
	}
	return NewSMTPSender(cfg)
}

// LogSender only logs outgoing mail. It is used when delivery is disabled.
type LogSender struct {
	Logger *log.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, to, subject, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Info("mail delivery disabled, dropping message", "to", to, "subject", subject)
	return nil
}

var alertTemplate = template.Must(template.New("alert").Parse(`<div style="font-family: monospace; background: #020617; color: #f8fafc; padding: 20px; border: 1px solid #1e293b;">
  <h2 style="color: #0ea5e9; border-bottom: 1px solid #334155; padding-bottom: 10px;">{{.Title}}</h2>
  <p style="font-size: 16px;">{{.Message}}</p>
  <hr style="border: none; border-top: 1px solid #334155; margin: 20px 0;" />
  <p style="font-size: 10px; color: #64748b; text-transform: uppercase;">Sent by the engagement engine</p>
</div>`))

// RenderAlert returns the subject and HTML body of a notification email.
// Title and message are escaped.
func RenderAlert(title, message string) (string, string, error) {
	var buf bytes.Buffer
	data := struct{ Title, Message string }{Title: title, Message: message}
	if err := alertTemplate.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Nexus Alert: %s", title), buf.String(), nil
}
