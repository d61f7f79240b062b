package inbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/clientflow/leadcheck/internal/config"
)

// Monitor handles the IMAP connection to the mailbox that receives
// delivery-failure notifications.
type Monitor struct {
	config config.InboxConfig
	client *client.Client
	logger *slog.Logger
}

// Email represents a parsed message from the mailbox
type Email struct {
	UID        uint32 // IMAP UID
	MessageID  string
	From       string
	FromName   string // Sender display name (e.g., "Mail Delivery Subsystem")
	Subject    string
	Body       string // All text/plain parts joined
	HTMLBody   string
	ReceivedAt time.Time // Server internal date
}

// NewMonitor creates a new inbox monitor
func NewMonitor(cfg config.InboxConfig, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{config: cfg, logger: logger}
}

// Connect establishes the IMAP connection over TLS and logs in
func (m *Monitor) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)

	timeout := m.config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	m.logger.Debug("connecting to IMAP server", slog.String("addr", addr))

	dialer := &net.Dialer{Timeout: timeout}
	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{
		ServerName: m.config.Server,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	c.Timeout = timeout

	if err := c.Login(m.config.Email, m.config.Password); err != nil {
		c.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	m.client = c
	m.logger.Debug("IMAP login successful", slog.String("account", m.config.Email))
	return nil
}

// Disconnect closes the IMAP connection
func (m *Monitor) Disconnect() error {
	if m.client != nil {
		err := m.client.Logout()
		m.client = nil
		return err
	}
	return nil
}

// searchDay is the SINCE date sent to the server for a window starting at
// since. SINCE compares whole dates in the server's timezone, so the search
// starts a UTC day early and callers filter on ReceivedAt for the exact window.
func searchDay(since time.Time) time.Time {
	d := since.Add(-clockSkew).UTC().AddDate(0, 0, -1)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// bounceCriteria matches messages from any of senders that the server dates
// no earlier than the day before since.
func bounceCriteria(since time.Time, senders []string) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.Since = searchDay(since)

	var fromAny *imap.SearchCriteria
	for i := len(senders) - 1; i >= 0; i-- {
		c := imap.NewSearchCriteria()
		c.Header.Add("From", senders[i])
		if fromAny == nil {
			fromAny = c
			continue
		}
		or := imap.NewSearchCriteria()
		or.Or = [][2]*imap.SearchCriteria{{c, fromAny}}
		fromAny = or
	}

	switch {
	case fromAny == nil:
	case len(fromAny.Or) > 0:
		criteria.Or = fromAny.Or
	default:
		criteria.Header = fromAny.Header
	}
	return criteria
}

// latestUIDs returns at most limit of the highest uids.
func latestUIDs(uids []uint32, limit int) []uint32 {
	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted
}

// SearchBounces selects the configured folder read-only and fetches the most
// recent limit messages from delivery-failure senders since the given time.
func (m *Monitor) SearchBounces(ctx context.Context, since time.Time, limit int) ([]Email, error) {
	if m.client == nil {
		return nil, fmt.Errorf("not connected to IMAP server")
	}

	// go-imap v1 has no context support; dropping the connection unblocks
	// any command in flight.
	stop := context.AfterFunc(ctx, func() { m.client.Terminate() })
	defer stop()

	mbox, err := m.client.Select(m.config.Folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", m.config.Folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	uids, err := m.client.UidSearch(bounceCriteria(since, m.config.BounceSenders))
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}

	m.logger.Debug("bounce search finished",
		slog.String("folder", m.config.Folder),
		slog.Int("matches", len(uids)),
		slog.Time("since", since))

	if len(uids) == 0 {
		return nil, nil
	}
	uids = latestUIDs(uids, limit)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqSet, items, messages)
	}()

	var emails []Email
	for msg := range messages {
		email := parseMessage(msg, section)
		if email != nil {
			emails = append(emails, *email)
		}
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(emails, func(i, j int) bool { return emails[i].UID > emails[j].UID })
	return emails, nil
}

// FetchBounces returns recent messages from the last days that look like
// bounce notifications. It backs the check-bounce diagnostic.
func (m *Monitor) FetchBounces(ctx context.Context, days, limit int) ([]Email, error) {
	since := time.Now().AddDate(0, 0, -days)
	emails, err := m.SearchBounces(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	var bounces []Email
	for i := range emails {
		if emails[i].ReceivedAt.Before(since) {
			continue
		}
		if IsBounceNotification(&emails[i], m.config.BounceSenders) {
			bounces = append(bounces, emails[i])
		}
	}

	m.logger.Info("bounce notifications found",
		slog.Int("bounces", len(bounces)),
		slog.Int("scanned", len(emails)))
	return bounces, nil
}

func senderMatches(e *Email, senders []string) bool {
	from := strings.ToLower(e.From)
	name := strings.ToLower(e.FromName)
	for _, s := range senders {
		s = strings.ToLower(s)
		if strings.Contains(from, s) || strings.Contains(name, s) {
			return true
		}
	}
	return false
}
