package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clientflow/leadcheck/internal/leads"
	"github.com/clientflow/leadcheck/internal/logger"
	"github.com/clientflow/leadcheck/internal/template"
)

type mockMailer struct {
	sendFn func(ctx context.Context, templateName, name, addr string) error
	sent   []string
}

func (m *mockMailer) SendTemplate(ctx context.Context, templateName, name, addr string) error {
	m.sent = append(m.sent, templateName+":"+addr)
	if m.sendFn != nil {
		return m.sendFn(ctx, templateName, name, addr)
	}
	return nil
}

func TestWelcomeEmailHook(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "sent"},
		{name: "send failure is swallowed", err: errors.New("smtp down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &mockMailer{sendFn: func(context.Context, string, string, string) error { return tt.err }}
			hook := &WelcomeEmailHook{Mailer: mailer, Logger: logger.Discard()}

			replies := hook.AfterVerified(context.Background(), leads.Record{Name: "Sara", Email: "sara@example.com"})
			assert.Empty(t, replies)
			assert.Equal(t, []string{template.Welcome + ":sara@example.com"}, mailer.sent)
		})
	}
}
