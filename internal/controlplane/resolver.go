package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/gophyn/phynbridge/internal/infrastructure/logging"
)

// wssURLPattern matches the broker URL issued by the control plane:
// wss://<host><path>, where path starts at the first slash.
var wssURLPattern = regexp.MustCompile(`^wss://([a-zA-Z0-9.-]+)(/.*)$`)

// iotPolicyResponse is the JSON body of the iot_policy endpoint.
type iotPolicyResponse struct {
	WSSURL string `json:"wss_url"`
}

// Resolver obtains the current broker host and connection path for the
// account.
//
// Each call performs one control-plane request; results are never cached
// because the endpoint may rotate between connections. The resolver does
// not retry; callers decide retry policy.
type Resolver struct {
	client *Client
	logger *logging.Logger
}

// NewResolver creates a Resolver backed by the given client.
func NewResolver(client *Client, logger *logging.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logger.Component("resolver"),
	}
}

// Resolve fetches the current broker endpoint from the control plane.
//
// It POSTs /users/{account_id}/iot_policy and expects a JSON body with a
// wss_url field of the form wss://<host><path>.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - host: Broker hostname
//   - path: WebSocket connection path (including query string)
//   - err: ErrEndpointUnavailable on call failure, ErrEndpointMalformed
//     when the response does not match the expected shape
func (r *Resolver) Resolve(ctx context.Context) (host, path string, err error) {
	body, err := r.client.post(ctx, fmt.Sprintf("/users/%s/iot_policy", r.client.AccountID()))
	if err != nil {
		return "", "", err
	}

	var policy iotPolicyResponse
	if err := json.Unmarshal(body, &policy); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrEndpointMalformed, err)
	}
	if policy.WSSURL == "" {
		return "", "", fmt.Errorf("%w: missing wss_url field", ErrEndpointMalformed)
	}

	match := wssURLPattern.FindStringSubmatch(policy.WSSURL)
	if match == nil {
		return "", "", fmt.Errorf("%w: %q", ErrEndpointMalformed, policy.WSSURL)
	}

	r.logger.Debug("resolved broker endpoint", "host", match[1])
	return match[1], match[2], nil
}
