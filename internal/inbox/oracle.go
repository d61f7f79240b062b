package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clientflow/leadcheck/internal/config"
)

// ErrOracleUnavailable means the mailbox could not be checked. The verdict
// returned alongside it is the fail-open default.
var ErrOracleUnavailable = errors.New("bounce oracle unavailable")

// clockSkew tolerates servers whose internal date lags the local clock.
const clockSkew = 2 * time.Minute

// Verdict is the result of one bounce check.
type Verdict struct {
	Bounced           bool
	EvidenceMessageID string
	// Degraded is set when the mailbox could not be checked and Bounced is
	// false only because nothing disproved deliverability.
	Degraded bool
	Scanned  int
}

// Mailbox is the read-only view of the bounce mailbox the oracle needs.
type Mailbox interface {
	SearchBounces(ctx context.Context, since time.Time, limit int) ([]Email, error)
	Disconnect() error
}

// DialFunc opens a logged-in Mailbox.
type DialFunc func(ctx context.Context) (Mailbox, error)

// IMAPDialer dials the mailbox described by cfg.
func IMAPDialer(cfg config.InboxConfig, logger *slog.Logger) DialFunc {
	return func(ctx context.Context) (Mailbox, error) {
		m := NewMonitor(cfg, logger)
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Oracle is a single-shot bounce check over a mailbox. It never retries;
// the caller decides when to check again.
type Oracle struct {
	dial       DialFunc
	classifier *Classifier
	scanLimit  int
	logger     *slog.Logger
}

// NewOracle builds an oracle. A nil dial makes every check degraded.
func NewOracle(dial DialFunc, cfg config.InboxConfig, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.ScanLimit
	if limit <= 0 {
		limit = 10
	}
	phrases := cfg.BouncePhrases
	if len(phrases) == 0 {
		phrases = config.DefaultBouncePhrases
	}
	return &Oracle{
		dial:       dial,
		classifier: NewClassifier(phrases),
		scanLimit:  limit,
		logger:     logger,
	}
}

// Check looks for a delivery-failure notification about target received
// after windowStart. When the mailbox is unreachable it fails open: the
// verdict is not bounced, Degraded is set and the error wraps
// ErrOracleUnavailable.
func (o *Oracle) Check(ctx context.Context, target string, windowStart time.Time) (Verdict, error) {
	if o.dial == nil {
		return Verdict{Degraded: true}, fmt.Errorf("%w: inbox checking disabled", ErrOracleUnavailable)
	}

	mbox, err := o.dial(ctx)
	if err != nil {
		return Verdict{Degraded: true}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer func() {
		if err := mbox.Disconnect(); err != nil {
			o.logger.Debug("IMAP logout failed", slog.String("error", err.Error()))
		}
	}()

	emails, err := mbox.SearchBounces(ctx, windowStart, o.scanLimit)
	if err != nil {
		return Verdict{Degraded: true}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	cutoff := windowStart.Add(-clockSkew)
	var v Verdict
	for i := range emails {
		if v.Scanned == o.scanLimit {
			break
		}
		e := &emails[i]
		if !e.ReceivedAt.IsZero() && e.ReceivedAt.Before(cutoff) {
			continue
		}
		v.Scanned++

		if o.classifier.Matches(e, target) {
			v.Bounced = true
			v.EvidenceMessageID = e.MessageID
			o.logger.Info("bounce detected",
				slog.String("email", target),
				slog.String("message_id", e.MessageID),
				slog.String("phrase", o.classifier.MatchedPhrase(e)))
			return v, nil
		}
	}

	o.logger.Debug("no bounce found",
		slog.String("email", target),
		slog.Int("scanned", v.Scanned))
	return v, nil
}
