package controlplane

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gophyn/phynbridge/internal/infrastructure/config"
	"github.com/gophyn/phynbridge/internal/infrastructure/logging"
)

// tokenExpiryWarning is how close to expiry the bearer token may be before
// requests log a warning. The keepalive reconnect refreshes the session
// hourly, so a token expiring inside that window risks a failed refresh.
const tokenExpiryWarning = time.Hour

// maxResponseBytes bounds control-plane response bodies.
const maxResponseBytes = 1 << 20

// TokenProvider supplies the identity-scoped bearer credential for
// control-plane calls. The vendor SSO flow that produces the token lives
// outside this repository.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed credential, typically
// loaded from configuration or the environment.
type StaticToken string

// Token returns the fixed credential.
func (s StaticToken) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Client issues authenticated requests against the control-plane API.
//
// Each request carries a Bearer token from the TokenProvider and a fresh
// X-Request-Id for correlation. The client performs no retries.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL   string
	accountID string
	tokens    TokenProvider
	http      *http.Client
	logger    *logging.Logger
}

// NewClient creates a control-plane client.
//
// Parameters:
//   - cfg: Control-plane configuration (base URL, timeout)
//   - accountID: Account identifier used in request paths
//   - tokens: Source of the bearer credential
//   - logger: Structured logger
//
// Returns:
//   - *Client: Client ready for use
func NewClient(cfg config.ControlPlaneConfig, accountID string, tokens TokenProvider, logger *logging.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		accountID: accountID,
		tokens:    tokens,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.Component("controlplane"),
	}
}

// AccountID returns the URL-escaped account identifier for use in paths.
func (c *Client) AccountID() string {
	return url.QueryEscape(c.accountID)
}

// post issues an authenticated POST and returns the response body.
//
// Returns:
//   - []byte: Response body (bounded)
//   - error: ErrEndpointUnavailable on transport failure or non-2xx status
func (c *Client) post(ctx context.Context, path string) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEndpointUnavailable, err)
	}
	c.warnIfExpiring(token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrEndpointUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEndpointUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrEndpointUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrEndpointUnavailable, resp.StatusCode)
	}

	return body, nil
}

// warnIfExpiring logs when the bearer token is expired or lapses within
// the keepalive window. The token is parsed without verification; only
// the exp claim is of interest here, validation is the server's job.
func (c *Client) warnIfExpiring(token string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Not a JWT; nothing to inspect.
		return
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}

	remaining := time.Until(exp.Time)
	switch {
	case remaining <= 0:
		c.logger.Warn("bearer token is expired", "expired_at", exp.Time)
	case remaining < tokenExpiryWarning:
		c.logger.Warn("bearer token expires soon",
			"expires_at", exp.Time,
			"remaining", remaining.String(),
		)
	}
}
