package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/clientflow/leadcheck/internal/config"
)

type SMTPSender struct {
	config   config.SMTPConfig
	fromName string
	dial     func(m *gomail.Message) error
}

// NewSMTPSender submits through an SMTP relay. Port 465 uses implicit TLS,
// any other port upgrades with STARTTLS when the server offers it.
func NewSMTPSender(cfg config.SMTPConfig, fromName string) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseTLS && cfg.Port == 465
	d.TLSConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	return &SMTPSender{config: cfg, fromName: fromName, dial: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(msg); err != nil {
		return Result{Success: false, Error: err}
	}
	if !s.config.UseTLS && s.config.Username != "" {
		return Result{Success: false, Error: fmt.Errorf("SMTP auth requires TLS")}
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(msg.From))

	m := gomail.NewMessage()
	if s.fromName != "" {
		m.SetAddressHeader("From", msg.From, s.fromName)
	} else {
		m.SetHeader("From", msg.From)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", msg.Body)

	// gomail has no context support; the dial keeps running in the
	// background if ctx expires first.
	errc := make(chan error, 1)
	go func() {
		errc <- s.dial(m)
	}()

	select {
	case <-ctx.Done():
		return Result{Success: false, Error: fmt.Errorf("SMTP send aborted: %w", ctx.Err())}
	case err := <-errc:
		if err != nil {
			return Result{Success: false, Error: sanitizeSMTPError(err)}
		}
	}

	return Result{Success: true, MessageID: messageID}
}

func sanitizeSMTPError(err error) error {
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "auth") || strings.Contains(s, "535") {
		return fmt.Errorf("SMTP authentication failed")
	}
	if strings.Contains(s, "certificate") {
		return fmt.Errorf("TLS certificate error")
	}
	if strings.Contains(s, "timeout") || strings.Contains(s, "deadline") {
		return fmt.Errorf("SMTP server timed out")
	}
	return fmt.Errorf("SMTP error: check your configuration")
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
