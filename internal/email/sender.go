package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/clientflow/leadcheck/internal/config"
)

type Message struct {
	To      string
	From    string
	Subject string
	Body    string
}

type Result struct {
	Success   bool
	MessageID string
	Error     error
}

type Sender interface {
	Send(ctx context.Context, msg Message) Result
	Name() string
}

// NewSender builds the provider selected by cfg.Provider.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	switch cfg.Provider {
	case "", "smtp":
		return NewSMTPSender(cfg.SMTP, cfg.FromName), nil
	case "sendgrid":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("sendgrid: api key is required")
		}
		return NewSendGridSender(cfg.APIKey, "", cfg.FromName), nil
	case "resend":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("resend: api key is required")
		}
		return NewResendSender(cfg.APIKey, "", cfg.FromName)
	}
	return nil, fmt.Errorf("unknown email provider: %s (smtp, sendgrid or resend)", cfg.Provider)
}

func validateMessage(msg Message) error {
	if err := ValidateEmail(msg.From); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := ValidateEmail(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	// Reject headers with CRLF to prevent injection
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("subject contains invalid characters")
	}
	return nil
}

func formatFrom(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}
