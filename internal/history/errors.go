package history

import "errors"

// Domain-specific errors for the history store.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when a device has no stored state.
	ErrNotFound = errors.New("history: device not found")
)
