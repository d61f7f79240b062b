package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/clientflow/leadcheck/internal/email"
	"github.com/clientflow/leadcheck/internal/inbox"
	"github.com/clientflow/leadcheck/internal/leads"
	"github.com/clientflow/leadcheck/internal/metrics"
	"github.com/clientflow/leadcheck/internal/sheets"
)

// LeadStore persists lead records.
type LeadStore interface {
	Append(ctx context.Context, r *leads.Record) error
	UpdateStatus(ctx context.Context, userID, addr string, status leads.Status) (bool, error)
	ForUser(ctx context.Context, userID string) ([]leads.Record, error)
}

// Challenger sends the verification email.
type Challenger interface {
	Send(ctx context.Context, name, addr string) error
}

// Oracle checks a mailbox for a bounce about target.
type Oracle interface {
	Check(ctx context.Context, target string, windowStart time.Time) (inbox.Verdict, error)
}

// SheetSync mirrors records to the remote sheet.
type SheetSync interface {
	Push(ctx context.Context, r leads.Record) error
}

// runtime is what the Machine needs from its owner to defer work.
type runtime interface {
	schedule(s *Session) string
	cancel(taskID string)
	spawn(fn func(ctx context.Context))
}

// Machine applies conversation transitions to a Session. Callers must hold
// the session's lock.
type Machine struct {
	store      LeadStore
	challenger Challenger
	sheets     SheetSync
	messages   *Messages
	hooks      []Hook
	metrics    metrics.Recorder
	provider   string
	logger     *slog.Logger
	now        func() time.Time
	rt         runtime
}

const (
	cmdStart  = "/start"
	cmdCancel = "/cancel"
	cmdList   = "/list"
	cmdHelp   = "/help"
)

// command returns the bot command in text, without any @botname suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

// Handle applies one inbound text to s.
func (m *Machine) Handle(ctx context.Context, s *Session, raw string) []Reply {
	input := strings.TrimSpace(raw)
	s.UpdatedAt = m.now()

	switch command(input) {
	case cmdStart:
		return m.start(s)
	case cmdCancel:
		return m.cancelSession(s)
	case cmdList:
		return m.list(ctx, s)
	case cmdHelp:
		return []Reply{text(m.messages.Text(MsgHelp, Vars{}))}
	}

	switch s.State {
	case StateInit:
		return m.start(s)
	case StateAwaitingName:
		return m.acceptName(s, input)
	case StateAwaitingEmail:
		return m.acceptEmail(ctx, s, input)
	case StateVerifying:
		if _, err := validateEmail(input); err != nil {
			return []Reply{text(m.messages.Text(MsgStillChecking, Vars{Name: s.Name, Email: s.Email}))}
		}
		m.logger.Info("restarting verification with new address",
			slog.String("user_id", s.ID),
			slog.String("previous", s.Email))
		m.dropTask(s)
		return m.acceptEmail(ctx, s, input)
	}

	// Terminal sessions are replaced before they reach the machine.
	return m.start(s)
}

func (m *Machine) start(s *Session) []Reply {
	m.dropTask(s)
	s.Name = ""
	s.Email = ""
	s.State = StateAwaitingName
	return []Reply{{Text: m.messages.Text(MsgGreeting, Vars{}), RemoveKeyboard: true}}
}

func (m *Machine) cancelSession(s *Session) []Reply {
	m.dropTask(s)
	s.Name = ""
	s.Email = ""
	s.State = StateCancelled
	return []Reply{{Text: m.messages.Text(MsgCancelled, Vars{}), Keyboard: restartKeyboard}}
}

func (m *Machine) dropTask(s *Session) {
	if s.taskID != "" {
		m.rt.cancel(s.taskID)
		s.taskID = ""
	}
}

func (m *Machine) list(ctx context.Context, s *Session) []Reply {
	records, err := m.store.ForUser(ctx, s.ID)
	if err != nil {
		m.persistenceFailed("list", err, s)
		return []Reply{text(m.messages.Text(MsgListFailed, Vars{}))}
	}
	if len(records) == 0 {
		return []Reply{text(m.messages.Text(MsgListEmpty, Vars{}))}
	}

	var b strings.Builder
	b.WriteString(m.messages.Text(MsgList, Vars{}))
	for _, r := range records {
		b.WriteString("\n")
		b.WriteString(m.messages.Text(MsgListItem, Vars{Name: r.Name, Email: r.Email, Status: string(r.Status)}))
	}
	return []Reply{text(b.String())}
}

func validateName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", &ValidationError{Field: "name", Reason: "empty"}
	}
	return name, nil
}

func validateEmail(input string) (string, error) {
	addr := email.Normalize(input)
	if addr == "" {
		return "", &ValidationError{Field: "email", Reason: "empty"}
	}
	if !email.IsValid(addr) {
		return "", &ValidationError{Field: "email", Reason: "malformed address"}
	}
	return addr, nil
}

func (m *Machine) acceptName(s *Session, input string) []Reply {
	name, err := validateName(input)
	if err != nil {
		m.logger.Debug("name rejected", slog.String("user_id", s.ID), slog.String("error", err.Error()))
		return []Reply{text(m.messages.Text(MsgNameEmpty, Vars{}))}
	}
	s.Name = name
	s.State = StateAwaitingEmail
	return []Reply{text(m.messages.Text(MsgAskEmail, Vars{Name: name}))}
}

func (m *Machine) acceptEmail(ctx context.Context, s *Session, input string) []Reply {
	addr, err := validateEmail(input)
	if err != nil {
		m.logger.Debug("email rejected", slog.String("user_id", s.ID), slog.String("error", err.Error()))
		return []Reply{text(m.messages.Text(MsgEmailInvalid, Vars{Name: s.Name}))}
	}

	rec := leads.Record{
		Name:     s.Name,
		Email:    addr,
		UserID:   s.ID,
		Username: s.Username,
		Status:   leads.StatusPending,
	}
	if err := m.store.Append(ctx, &rec); err != nil {
		m.persistenceFailed("append", err, s)
	} else {
		m.metrics.RecordLeadCaptured()
	}
	m.rt.spawn(func(ctx context.Context) {
		m.push(ctx, rec)
	})

	s.Email = addr
	vars := Vars{Name: s.Name, Email: addr}

	if err := m.challenger.Send(ctx, s.Name, addr); err != nil {
		m.metrics.RecordChallenge(m.provider, false)
		m.logger.Warn("verification email failed",
			slog.String("user_id", s.ID),
			slog.String("email", addr),
			slog.String("error", err.Error()))
		s.State = StateDone
		return []Reply{{Text: m.messages.Text(MsgSendFailed, vars), Keyboard: restartKeyboard}}
	}
	m.metrics.RecordChallenge(m.provider, true)

	s.sentAt = m.now()
	s.State = StateVerifying
	s.taskID = m.rt.schedule(s)

	m.logger.Info("verification email sent",
		slog.String("user_id", s.ID),
		slog.String("email", addr),
		slog.String("task", s.taskID))
	return []Reply{text(m.messages.Text(MsgChecking, vars))}
}

// Resolve commits a bounce verdict to a VERIFYING session that still owns
// its task: the store status and the next state. The returned follow-up runs
// the sheet push and hooks and builds the replies; it does not touch s and is
// meant to run after the session lock is released.
func (m *Machine) Resolve(ctx context.Context, s *Session, v inbox.Verdict) func(ctx context.Context) []Reply {
	s.taskID = ""
	s.UpdatedAt = m.now()
	vars := Vars{Name: s.Name, Email: s.Email}

	rec := leads.Record{
		Name:     s.Name,
		Email:    s.Email,
		UserID:   s.ID,
		Username: s.Username,
	}

	if v.Bounced {
		m.metrics.RecordVerdict(metrics.OutcomeBounced)
		rec.Status = leads.StatusInvalid
		m.finalize(ctx, s, rec.Status)

		s.Email = ""
		s.State = StateAwaitingEmail
		return func(ctx context.Context) []Reply {
			m.push(ctx, rec)
			return []Reply{text(m.messages.Text(MsgBounced, vars))}
		}
	}

	outcome := metrics.OutcomeVerified
	if v.Degraded {
		outcome = metrics.OutcomeDegraded
	}
	m.metrics.RecordVerdict(outcome)

	rec.Status = leads.StatusVerified
	m.finalize(ctx, s, rec.Status)
	s.State = StateDone

	return func(ctx context.Context) []Reply {
		key := MsgVerifiedUnsynced
		if m.push(ctx, rec) {
			key = MsgVerifiedSynced
		}
		replies := []Reply{{Text: m.messages.Text(key, vars), Keyboard: restartKeyboard}}
		for _, h := range m.hooks {
			replies = append(replies, h.AfterVerified(ctx, rec)...)
		}
		return replies
	}
}

func (m *Machine) finalize(ctx context.Context, s *Session, status leads.Status) {
	updated, err := m.store.UpdateStatus(ctx, s.ID, s.Email, status)
	switch {
	case err != nil:
		m.persistenceFailed("update_status", err, s)
	case !updated:
		m.logger.Warn("no pending record to finalize",
			slog.String("user_id", s.ID),
			slog.String("email", s.Email),
			slog.String("status", string(status)))
	default:
		m.logger.Info("lead finalized",
			slog.String("user_id", s.ID),
			slog.String("email", s.Email),
			slog.String("status", string(status)))
	}
}

// push mirrors rec to the sheet. It reports false only when a configured
// sheet rejected or missed the record.
func (m *Machine) push(ctx context.Context, rec leads.Record) bool {
	err := m.sheets.Push(ctx, rec)
	switch {
	case err == nil:
		m.metrics.RecordSheetSync(true)
		return true
	case errors.Is(err, sheets.ErrDisabled):
		// Nothing to sync; the local store is the record.
		return true
	default:
		m.metrics.RecordSheetSync(false)
		m.logger.Warn("sheet sync failed",
			slog.String("user_id", rec.UserID),
			slog.String("status", string(rec.Status)),
			slog.String("error", err.Error()))
		return false
	}
}

func (m *Machine) persistenceFailed(op string, err error, s *Session) {
	m.metrics.RecordPersistenceFailure(op)
	var pe *leads.PersistenceError
	if !errors.As(err, &pe) {
		pe = &leads.PersistenceError{Op: op, Err: err}
	}
	m.logger.Error("lead store failure",
		slog.String("user_id", s.ID),
		slog.String("error", pe.Error()))
}
