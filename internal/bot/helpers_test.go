package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clientflow/leadcheck/internal/inbox"
	"github.com/clientflow/leadcheck/internal/leads"
	"github.com/clientflow/leadcheck/internal/logger"
	"github.com/clientflow/leadcheck/internal/metrics"
)

var t0 = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type mockChallenger struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, name, addr string) error
	sent   []string
}

func (m *mockChallenger) Send(ctx context.Context, name, addr string) error {
	m.mu.Lock()
	m.sent = append(m.sent, addr)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, name, addr)
	}
	return nil
}

func (m *mockChallenger) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type mockOracle struct {
	mu      sync.Mutex
	checkFn func(ctx context.Context, target string, windowStart time.Time) (inbox.Verdict, error)
	targets []string
	windows []time.Time
}

func (m *mockOracle) Check(ctx context.Context, target string, windowStart time.Time) (inbox.Verdict, error) {
	m.mu.Lock()
	m.targets = append(m.targets, target)
	m.windows = append(m.windows, windowStart)
	m.mu.Unlock()
	if m.checkFn != nil {
		return m.checkFn(ctx, target, windowStart)
	}
	return inbox.Verdict{}, nil
}

func (m *mockOracle) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.targets)
}

type mockSheets struct {
	mu     sync.Mutex
	pushFn func(ctx context.Context, r leads.Record) error
	pushed []leads.Record
}

func (m *mockSheets) Push(ctx context.Context, r leads.Record) error {
	m.mu.Lock()
	m.pushed = append(m.pushed, r)
	m.mu.Unlock()
	if m.pushFn != nil {
		return m.pushFn(ctx, r)
	}
	return nil
}

func (m *mockSheets) statuses() []leads.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]leads.Status, 0, len(m.pushed))
	for _, r := range m.pushed {
		out = append(out, r.Status)
	}
	return out
}

// manualScheduler records tasks and runs them only when told to.
type manualScheduler struct {
	mu        sync.Mutex
	next      int
	pending   map[string]TaskFunc
	all       map[string]TaskFunc
	delays    []time.Duration
	cancelled []string
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{
		pending: make(map[string]TaskFunc),
		all:     make(map[string]TaskFunc),
	}
}

func (m *manualScheduler) Schedule(delay time.Duration, fn TaskFunc) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("task-%d", m.next)
	m.pending[id] = fn
	m.all[id] = fn
	m.delays = append(m.delays, delay)
	return id
}

func (m *manualScheduler) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[id]; !ok {
		return false
	}
	delete(m.pending, id)
	m.cancelled = append(m.cancelled, id)
	return true
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *manualScheduler) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string]TaskFunc)
	return nil
}

func (m *manualScheduler) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("task-%d", m.next)
}

// fire runs the task even if it was cancelled, like a timer that already
// fired when Cancel was called.
func (m *manualScheduler) fire(id string) {
	m.mu.Lock()
	fn := m.all[id]
	delete(m.pending, id)
	m.mu.Unlock()
	if fn != nil {
		fn(context.Background(), id)
	}
}

type recordingMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	verdicts []string
	failures []string
	captured int
}

func (r *recordingMetrics) RecordVerdict(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, outcome)
}

func (r *recordingMetrics) RecordPersistenceFailure(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, op)
}

func (r *recordingMetrics) RecordLeadCaptured() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured++
}

type harness struct {
	router     *Router
	store      *leads.Store
	sched      *manualScheduler
	outbox     *Outbox
	sheets     *mockSheets
	challenger *mockChallenger
	oracle     *mockOracle
	metrics    *recordingMetrics
	messages   *Messages
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()

	store, err := leads.NewStore(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:      store,
		sched:      newManualScheduler(),
		outbox:     NewOutbox(10, logger.Discard()),
		sheets:     &mockSheets{},
		challenger: &mockChallenger{},
		oracle:     &mockOracle{},
		metrics:    &recordingMetrics{},
		messages:   NewMessages("Acme", nil),
	}

	d := Deps{
		Store:         store,
		Challenger:    h.challenger,
		Oracle:        h.oracle,
		Sheets:        h.sheets,
		Scheduler:     h.sched,
		Notifier:      h.outbox,
		Messages:      h.messages,
		Metrics:       h.metrics,
		Logger:        logger.Discard(),
		Provider:      "smtp",
		VerifyDelay:   time.Minute,
		SessionTTL:    30 * time.Minute,
		SweepInterval: -1,
		Now:           func() time.Time { return t0 },
	}
	for _, opt := range opts {
		opt(&d)
	}
	if d.Store == nil {
		d.Store = store
	}

	h.router = NewRouter(d)
	t.Cleanup(func() { h.router.Close(context.Background()) })
	return h
}

func (h *harness) send(t *testing.T, identity, text string) []Reply {
	t.Helper()
	replies, err := h.router.Route(context.Background(), Inbound{Identity: identity, Username: "user_" + identity, Text: text})
	require.NoError(t, err)
	return replies
}

// toVerifying walks identity through the flow up to the scheduled check.
func (h *harness) toVerifying(t *testing.T, identity, name, addr string) string {
	t.Helper()
	h.send(t, identity, "/start")
	h.send(t, identity, name)
	replies := h.send(t, identity, addr)
	require.Len(t, replies, 1)
	require.Equal(t, h.messages.Text(MsgChecking, Vars{Name: name, Email: addr}), replies[0].Text)
	return h.sched.last()
}

func (h *harness) msg(key string, v Vars) string {
	return h.messages.Text(key, v)
}

func (h *harness) records(t *testing.T) []leads.Record {
	t.Helper()
	all, err := h.store.All(context.Background())
	require.NoError(t, err)
	return all
}

func texts(replies []Reply) []string {
	out := make([]string, 0, len(replies))
	for _, r := range replies {
		out = append(out, r.Text)
	}
	return out
}
