package controlplane

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gophyn/phynbridge/internal/infrastructure/config"
	"github.com/gophyn/phynbridge/internal/infrastructure/logging"
)

// newTestResolver builds a resolver against a test server.
func newTestResolver(t *testing.T, handler http.HandlerFunc) *Resolver {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.ControlPlaneConfig{
		BaseURL: server.URL,
		Timeout: 5,
	}, "user@example.com", StaticToken("test-token"), logging.Default())

	return NewResolver(client, logging.Default())
}

func TestResolve(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		// Account identifier is URL-escaped on the wire; the decoded
		// path carries the original identifier.
		if r.URL.Path != "/users/user@example.com/iot_policy" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/users/user@example.com/iot_policy")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("X-Request-Id header missing")
		}
		w.Write([]byte(`{"wss_url": "wss://broker.example.com/mqtt?x=1"}`))
	})

	host, path, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if host != "broker.example.com" {
		t.Errorf("host = %q, want %q", host, "broker.example.com")
	}
	if path != "/mqtt?x=1" {
		t.Errorf("path = %q, want %q", path, "/mqtt?x=1")
	}
}

func TestResolve_ServerError(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, _, err := resolver.Resolve(context.Background())
	if !errors.Is(err, ErrEndpointUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrEndpointUnavailable", err)
	}
}

func TestResolve_Unreachable(t *testing.T) {
	client := NewClient(config.ControlPlaneConfig{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
		Timeout: 1,
	}, "user@example.com", StaticToken("test-token"), logging.Default())
	resolver := NewResolver(client, logging.Default())

	_, _, err := resolver.Resolve(context.Background())
	if !errors.Is(err, ErrEndpointUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrEndpointUnavailable", err)
	}
}

func TestResolve_MissingField(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"other": "value"}`))
	})

	_, _, err := resolver.Resolve(context.Background())
	if !errors.Is(err, ErrEndpointMalformed) {
		t.Errorf("Resolve() error = %v, want ErrEndpointMalformed", err)
	}
}

func TestResolve_NotJSON(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	})

	_, _, err := resolver.Resolve(context.Background())
	if !errors.Is(err, ErrEndpointMalformed) {
		t.Errorf("Resolve() error = %v, want ErrEndpointMalformed", err)
	}
}

func TestResolve_WrongScheme(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"wss_url": "https://broker.example.com/mqtt"}`))
	})

	_, _, err := resolver.Resolve(context.Background())
	if !errors.Is(err, ErrEndpointMalformed) {
		t.Errorf("Resolve() error = %v, want ErrEndpointMalformed", err)
	}
}

func TestResolve_NoPath(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"wss_url": "wss://broker.example.com"}`))
	})

	_, _, err := resolver.Resolve(context.Background())
	if !errors.Is(err, ErrEndpointMalformed) {
		t.Errorf("Resolve() error = %v, want ErrEndpointMalformed", err)
	}
}

func TestStaticToken_Empty(t *testing.T) {
	_, err := StaticToken("").Token(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() error = %v, want ErrNoToken", err)
	}
}

func TestResolve_NoRetry(t *testing.T) {
	calls := 0
	resolver := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, _ = resolver.Resolve(context.Background())
	if calls != 1 {
		t.Errorf("control-plane called %d times, want 1 (no internal retry)", calls)
	}
}
