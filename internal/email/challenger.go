package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/clientflow/leadcheck/internal/config"
	"github.com/clientflow/leadcheck/internal/template"
)

// Challenger sends verification and follow-up emails through a Sender,
// throttled and bounded by a timeout.
type Challenger struct {
	sender  Sender
	engine  *template.Engine
	from    string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewChallenger(sender Sender, engine *template.Engine, cfg config.EmailConfig, logger *slog.Logger) *Challenger {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RateLimitMs > 0 {
		limit = rate.Every(time.Duration(cfg.RateLimitMs) * time.Millisecond)
	}
	return &Challenger{
		sender:  sender,
		engine:  engine,
		from:    cfg.From,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Send dispatches the challenge email. A nil error means the provider
// accepted it; failures are *DispatchError.
func (c *Challenger) Send(ctx context.Context, name, addr string) error {
	return c.SendTemplate(ctx, template.Challenge, name, addr)
}

// SendTemplate renders templateName for name/addr and dispatches it.
func (c *Challenger) SendTemplate(ctx context.Context, templateName, name, addr string) (err error) {
	provider := c.sender.Name()
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{Provider: provider, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &DispatchError{Provider: provider, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	rendered, err := c.engine.Render(templateName, name, addr)
	if err != nil {
		return &DispatchError{Provider: provider, Err: err}
	}

	start := time.Now()
	res := c.sender.Send(ctx, Message{
		To:      addr,
		From:    c.from,
		Subject: rendered.Subject,
		Body:    rendered.Body,
	})
	if !res.Success {
		cause := res.Error
		if cause == nil {
			cause = fmt.Errorf("provider rejected message")
		}
		c.logger.Warn("email dispatch failed",
			slog.String("provider", provider),
			slog.String("template", templateName),
			slog.String("email", addr),
			slog.String("error", cause.Error()))
		return &DispatchError{Provider: provider, Err: cause}
	}

	c.logger.Info("email dispatched",
		slog.String("provider", provider),
		slog.String("template", templateName),
		slog.String("email", addr),
		slog.String("message_id", res.MessageID),
		slog.Duration("took", time.Since(start)))
	return nil
}
