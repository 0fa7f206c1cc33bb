package controlplane

import "errors"

// Domain-specific errors for control-plane operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEndpointUnavailable is returned when the control-plane call fails
	// at the transport level or with a non-2xx status.
	ErrEndpointUnavailable = errors.New("controlplane: endpoint unavailable")

	// ErrEndpointMalformed is returned when the control-plane response does
	// not contain a wss://<host><path> URL in the expected shape.
	ErrEndpointMalformed = errors.New("controlplane: malformed endpoint response")

	// ErrNoToken is returned when the token provider cannot supply a
	// bearer credential.
	ErrNoToken = errors.New("controlplane: no bearer token available")
)
