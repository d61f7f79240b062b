package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clientflow/leadcheck/internal/inbox"
	"github.com/clientflow/leadcheck/internal/metrics"
)

// Deps wires a Router to its collaborators.
type Deps struct {
	Store      LeadStore
	Challenger Challenger
	Oracle     Oracle
	Sheets     SheetSync
	Scheduler  Scheduler
	Notifier   Notifier
	Messages   *Messages
	Hooks      []Hook
	Metrics    metrics.Recorder
	Logger     *slog.Logger

	// Provider labels challenge metrics.
	Provider    string
	VerifyDelay time.Duration
	SessionTTL  time.Duration
	// SweepInterval defaults to a minute; negative disables the sweeper.
	SweepInterval time.Duration
	Now           func() time.Time
}

// entry guards one identity's session. removed is set when the sweeper
// drops the entry so that a goroutine already holding the pointer retries.
type entry struct {
	mu       sync.Mutex
	session  *Session
	removed  bool
	lastSeen time.Time
}

// Router maps inbound messages to per-identity sessions and serializes
// every transition of a session, including deferred verification results.
type Router struct {
	mu      sync.Mutex
	entries map[string]*entry

	machine   *Machine
	oracle    Oracle
	scheduler Scheduler
	notifier  Notifier
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
	delay     time.Duration
	ttl       time.Duration

	active atomic.Int64

	bg       context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	closed   bool

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewRouter builds a Router and starts its idle-session sweeper.
func NewRouter(d Deps) *Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Messages == nil {
		d.Messages = NewMessages("", nil)
	}
	if d.Notifier == nil {
		d.Notifier = NotifierFunc(func(context.Context, string, []Reply) {})
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 30 * time.Minute
	}

	bg, cancel := context.WithCancel(context.Background())
	r := &Router{
		entries:   make(map[string]*entry),
		oracle:    d.Oracle,
		scheduler: d.Scheduler,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
		delay:     d.VerifyDelay,
		ttl:       d.SessionTTL,
		bg:        bg,
		bgCancel:  cancel,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	r.machine = &Machine{
		store:      d.Store,
		challenger: d.Challenger,
		sheets:     d.Sheets,
		messages:   d.Messages,
		hooks:      d.Hooks,
		metrics:    d.Metrics,
		provider:   d.Provider,
		logger:     d.Logger,
		now:        d.Now,
		rt:         r,
	}

	interval := d.SweepInterval
	if interval == 0 {
		interval = time.Minute
	}
	if interval > 0 {
		go r.sweepLoop(interval)
	} else {
		close(r.sweepDone)
	}
	return r
}

// Route applies one inbound message to its identity's session and returns
// the replies in order.
func (r *Router) Route(ctx context.Context, in Inbound) ([]Reply, error) {
	identity := strings.TrimSpace(in.Identity)
	if identity == "" {
		r.logger.Warn("dropping message without identity", slog.String("username", in.Username))
		return nil, ErrUnroutable
	}
	r.metrics.RecordMessage()

	// A transport disconnect must not leave a transition half applied.
	ctx = context.WithoutCancel(ctx)

	e := r.lock(identity)
	defer e.mu.Unlock()

	now := r.now()
	if e.session == nil || e.session.State.Terminal() {
		r.setSession(e, newSession(identity, in.Username, now))
	}
	s := e.session
	if in.Username != "" {
		s.Username = in.Username
	}

	replies := r.machine.Handle(ctx, s, in.Text)
	e.lastSeen = now

	r.logger.Debug("message routed",
		slog.String("identity", identity),
		slog.String("state", string(s.State)),
		slog.Int("replies", len(replies)))

	if s.State.Terminal() {
		r.setSession(e, nil)
	}
	r.reportGauges()
	return replies, nil
}

// Deliver is the transport-facing name for Route.
func (r *Router) Deliver(ctx context.Context, in Inbound) ([]Reply, error) {
	return r.Route(ctx, in)
}

// lock returns the locked entry for identity, creating it if needed.
func (r *Router) lock(identity string) *entry {
	for {
		r.mu.Lock()
		e, ok := r.entries[identity]
		if !ok {
			e = &entry{}
			r.entries[identity] = e
		}
		r.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

func (r *Router) lookup(identity string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[identity]
}

func (r *Router) setSession(e *entry, s *Session) {
	switch {
	case e.session == nil && s != nil:
		r.active.Add(1)
	case e.session != nil && s == nil:
		r.active.Add(-1)
	}
	e.session = s
}

// Session returns a copy of the live session for identity.
func (r *Router) Session(identity string) (Session, bool) {
	e := r.lookup(identity)
	if e == nil {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Session{}, false
	}
	return *e.session, true
}

// Count returns the number of live sessions.
func (r *Router) Count() int {
	return int(r.active.Load())
}

func (r *Router) reportGauges() {
	r.metrics.SetActiveSessions(r.Count())
	if r.scheduler != nil {
		r.metrics.SetPendingVerifications(r.scheduler.Pending())
	}
}

// schedule, cancel and spawn let the Machine defer work without knowing
// about locks or timers.

func (r *Router) schedule(s *Session) string {
	return r.scheduler.Schedule(r.delay, func(ctx context.Context, taskID string) {
		r.verify(ctx, s, taskID)
	})
}

func (r *Router) cancel(taskID string) {
	r.scheduler.Cancel(taskID)
}

func (r *Router) spawn(fn func(ctx context.Context)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.bgWG.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.bgWG.Done()
		fn(r.bg)
	}()
}

// owns reports whether s is still the live, verifying session of e waiting
// on taskID. Callers hold e.mu.
func owns(e *entry, s *Session, taskID string) bool {
	return !e.removed && e.session == s && s.State == StateVerifying && s.taskID == taskID
}

// verify is the deferred half of a verification cycle. The oracle runs
// without the session lock; ownership is checked before and after it.
func (r *Router) verify(ctx context.Context, s *Session, taskID string) {
	e := r.lookup(s.ID)
	if e == nil {
		return
	}

	e.mu.Lock()
	if !owns(e, s, taskID) {
		e.mu.Unlock()
		r.logger.Debug("stale verification skipped", slog.String("task", taskID))
		return
	}
	target, sentAt := s.Email, s.sentAt
	e.mu.Unlock()

	start := time.Now()
	verdict, err := r.oracle.Check(ctx, target, sentAt)
	r.metrics.RecordOracleLatency(time.Since(start))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			r.logger.Debug("bounce check cancelled", slog.String("task", taskID))
			return
		}
		// Fail open: an unreadable mailbox does not disprove delivery.
		verdict = inbox.Verdict{Degraded: true}
		r.logger.Warn("bounce check degraded, treating as delivered",
			slog.String("identity", s.ID),
			slog.String("email", target),
			slog.String("error", err.Error()))
	}

	e.mu.Lock()
	if !owns(e, s, taskID) {
		e.mu.Unlock()
		r.logger.Debug("verification superseded during bounce check", slog.String("task", taskID))
		return
	}

	ctx = context.WithoutCancel(ctx)
	finish := r.machine.Resolve(ctx, s, verdict)
	e.lastSeen = r.now()
	if s.State.Terminal() {
		r.setSession(e, nil)
	}
	e.mu.Unlock()
	r.reportGauges()

	// Sheet sync and hooks may be slow; the user's next message must not
	// wait on them.
	r.notifier.Notify(ctx, s.ID, finish(ctx))
}

func (r *Router) sweepLoop(interval time.Duration) {
	defer close(r.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(r.now())
		case <-r.stopSweep:
			return
		}
	}
}

// sweep drops entries without a session and sessions idle for longer than
// the TTL. Verifying sessions and entries busy in a transition are kept.
func (r *Router) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.lastSeen) > r.ttl
		if e.session == nil || (idle && e.session.State != StateVerifying) {
			if e.session != nil {
				removed++
			}
			r.setSession(e, nil)
			e.removed = true
			delete(r.entries, id)
		}
		e.mu.Unlock()
	}

	if removed > 0 {
		r.logger.Debug("idle sessions swept", slog.Int("removed", removed))
	}
	r.metrics.SetActiveSessions(r.Count())
	return removed
}

// Close stops the sweeper, cancels scheduled verifications and waits for
// background work to finish or ctx to expire.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopSweep)
	<-r.sweepDone

	var err error
	if r.scheduler != nil {
		err = r.scheduler.Stop(ctx)
	}

	done := make(chan struct{})
	go func() {
		r.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	r.bgCancel()
	return err
}
