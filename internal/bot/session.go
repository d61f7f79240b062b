package bot

import "time"

type State string

const (
	StateInit          State = "INIT"
	StateAwaitingName  State = "AWAITING_NAME"
	StateAwaitingEmail State = "AWAITING_EMAIL"
	StateVerifying     State = "VERIFYING"
	StateDone          State = "DONE"
	StateCancelled     State = "CANCELLED"
)

// Terminal reports whether the session should be discarded.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled
}

// Session is the conversation state of one identity. It is only touched
// while the Router holds the identity's lock.
type Session struct {
	ID        string
	Username  string
	State     State
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time

	taskID string
	sentAt time.Time
}

func newSession(id, username string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Username:  username,
		State:     StateInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
