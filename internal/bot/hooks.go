package bot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/clientflow/leadcheck/internal/leads"
	"github.com/clientflow/leadcheck/internal/template"
)

// Hook runs after a lead is verified. Returned replies are delivered after
// the verified reply.
type Hook interface {
	AfterVerified(ctx context.Context, rec leads.Record) []Reply
}

// DocumentHook delivers a file to verified leads.
type DocumentHook struct {
	Path     string
	Filename string
	Caption  string
	Messages *Messages
	Logger   *slog.Logger
}

func (h *DocumentHook) AfterVerified(_ context.Context, rec leads.Record) []Reply {
	info, err := os.Stat(h.Path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		if h.Logger != nil {
			h.Logger.Warn("document unavailable",
				slog.String("path", h.Path),
				slog.String("user_id", rec.UserID))
		}
		return []Reply{text(h.Messages.Text(MsgDocumentMissing, Vars{Name: rec.Name, Email: rec.Email}))}
	}

	name := h.Filename
	if name == "" {
		name = filepath.Base(h.Path)
	}
	return []Reply{{
		Attachment: &Attachment{Path: h.Path, Filename: name, Caption: h.Caption},
	}}
}

// TemplateMailer sends a named email template.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, templateName, name, addr string) error
}

// WelcomeEmailHook emails the welcome template to verified leads. Failures
// are logged only; the lead stays verified.
type WelcomeEmailHook struct {
	Mailer TemplateMailer
	Logger *slog.Logger
}

func (h *WelcomeEmailHook) AfterVerified(ctx context.Context, rec leads.Record) []Reply {
	if err := h.Mailer.SendTemplate(ctx, template.Welcome, rec.Name, rec.Email); err != nil && h.Logger != nil {
		h.Logger.Warn("welcome email failed",
			slog.String("email", rec.Email),
			slog.String("error", err.Error()))
	}
	return nil
}
