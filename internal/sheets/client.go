// Package sheets pushes lead records to a spreadsheet web app endpoint.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/clientflow/leadcheck/internal/config"
	"github.com/clientflow/leadcheck/internal/leads"
)

// ErrDisabled is returned by Push when no endpoint is configured.
var ErrDisabled = errors.New("sheet sync disabled")

// SyncError reports a push the remote store did not accept. StatusCode is
// zero when no response was received.
type SyncError struct {
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sheet sync failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sheet sync failed: %v", e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// payload is the row shape the web app expects.
type payload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	Status   string `json:"status"`
}

// Client posts one row per call. It does not retry or queue and it is not
// idempotent: repeated pushes append duplicate rows unless the remote
// script dedupes them.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg config.SheetConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Enabled() bool { return c.url != "" }

// Push sends r to the remote store. A nil error means a 2xx response was
// received within the timeout.
func (c *Client) Push(ctx context.Context, r leads.Record) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	body, err := json.Marshal(payload{
		Name:     r.Name,
		Email:    r.Email,
		Username: r.Username,
		UserID:   r.UserID,
		Status:   string(r.Status),
	})
	if err != nil {
		return &SyncError{Err: fmt.Errorf("failed to encode record: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &SyncError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SyncError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SyncError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response %s", resp.Status)}
	}

	c.logger.Debug("sheet row pushed",
		slog.String("email", r.Email),
		slog.String("status", string(r.Status)),
		slog.Duration("took", time.Since(start)))
	return nil
}
