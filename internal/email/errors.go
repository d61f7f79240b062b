package email

import "fmt"

// DispatchError reports that a challenge email could not be handed to the
// mail provider. Verification does not start when it is returned.
type DispatchError struct {
	Provider string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s dispatch failed: %v", e.Provider, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
