package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/clientflow/leadcheck/internal/config"
)

func testSMTPConfig() config.SMTPConfig {
	return config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     465,
		Username: "noreply@clientflow.io",
		Password: "app-password",
		UseTLS:   true,
	}
}

func TestSMTPSender_Send(t *testing.T) {
	s := NewSMTPSender(testSMTPConfig(), "ClientFlow")

	var sent *gomail.Message
	s.dial = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	res := s.Send(context.Background(), Message{
		To:      "sara@example.com",
		From:    "noreply@clientflow.io",
		Subject: "ClientFlow Email Verification",
		Body:    "Hello Sara",
	})
	require.True(t, res.Success, "error: %v", res.Error)
	require.NotNil(t, sent)
	assert.Equal(t, []string{"sara@example.com"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"ClientFlow Email Verification"}, sent.GetHeader("Subject"))
	assert.Equal(t, []string{res.MessageID}, sent.GetHeader("Message-ID"))
	assert.Contains(t, res.MessageID, "@clientflow.io>")
}

func TestSMTPSender_Send_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(c *config.SMTPConfig)
		msg  Message
	}{
		{
			name: "header injection in subject",
			msg:  Message{To: "a@b.co", From: "c@d.co", Subject: "hi\r\nBcc: x@y.z"},
		},
		{
			name: "invalid recipient",
			msg:  Message{To: "nope", From: "c@d.co", Subject: "hi"},
		},
		{
			name: "auth without tls",
			cfg:  func(c *config.SMTPConfig) { c.UseTLS = false },
			msg:  Message{To: "a@b.co", From: "c@d.co", Subject: "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSMTPConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			s := NewSMTPSender(cfg, "")
			s.dial = func(m *gomail.Message) error {
				t.Fatal("dial must not be reached")
				return nil
			}
			res := s.Send(context.Background(), tt.msg)
			assert.False(t, res.Success)
			assert.Error(t, res.Error)
		})
	}
}

func TestSMTPSender_Send_SanitizesErrors(t *testing.T) {
	s := NewSMTPSender(testSMTPConfig(), "")
	s.dial = func(m *gomail.Message) error {
		return errors.New("535 5.7.8 Username and Password not accepted for app-password")
	}

	res := s.Send(context.Background(), Message{To: "a@b.co", From: "c@d.co", Subject: "hi"})
	require.False(t, res.Success)
	assert.Equal(t, "SMTP authentication failed", res.Error.Error())
	assert.NotContains(t, res.Error.Error(), "app-password")
}

func TestSMTPSender_Send_ContextCancelled(t *testing.T) {
	s := NewSMTPSender(testSMTPConfig(), "")
	release := make(chan struct{})
	defer close(release)
	s.dial = func(m *gomail.Message) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := s.Send(ctx, Message{To: "a@b.co", From: "c@d.co", Subject: "hi"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, context.DeadlineExceeded)
}

func TestSanitizeSMTPError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"smtp: server doesn't support AUTH", "SMTP authentication failed"},
		{"x509: certificate signed by unknown authority", "TLS certificate error"},
		{"dial tcp: i/o timeout", "SMTP server timed out"},
		{"connection refused", "SMTP error: check your configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeSMTPError(errors.New(tt.in)).Error())
		})
	}
}
