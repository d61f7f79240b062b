package leads

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusVerified Status = "Verified"
	StatusInvalid  Status = "Invalid"
)

// Final reports whether s ends a verification cycle.
func (s Status) Final() bool {
	return s == StatusVerified || s == StatusInvalid
}

// Record is one accepted name+email submission.
type Record struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Username  string    `json:"username,omitempty" yaml:"username,omitempty"`
	Status    Status    `json:"status" yaml:"status"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Verified int `json:"verified"`
	Invalid  int `json:"invalid"`
}

// PersistenceError wraps a failed read or write against the local store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("lead store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
