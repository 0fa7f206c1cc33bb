package bridge

import "errors"

// Domain-specific errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectFailed is returned when the transport-level connect
	// (dial and WebSocket handshake) fails.
	ErrConnectFailed = errors.New("bridge: connect failed")

	// ErrNotConnected is returned when attempting operations that require
	// an established broker connection.
	ErrNotConnected = errors.New("bridge: not connected")

	// ErrNotConfigured is returned when the transport is used before an
	// endpoint has been configured.
	ErrNotConfigured = errors.New("bridge: transport not configured")

	// ErrClosed is returned after a user-initiated disconnect; the
	// session is terminal and accepts no further operations.
	ErrClosed = errors.New("bridge: session closed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("bridge: topic cannot be empty")

	// ErrUnknownEvent is returned when registering a handler for an
	// event category outside connect, disconnect, update.
	ErrUnknownEvent = errors.New("bridge: unknown event category")
)
