package bot

import (
	"errors"
	"fmt"
)

// ErrUnroutable is returned for inbound messages without an identity.
var ErrUnroutable = errors.New("unroutable message: empty identity")

// ValidationError describes user input that was rejected and re-prompted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
