// Package controlplane talks to the Phyn HTTP control-plane API.
//
// The broker endpoint is not static: the control plane issues the current
// wss:// connection URL for the account, and it may rotate between
// connections. The Resolver is therefore consulted before the initial
// connect and before every reconnect attempt.
//
// The package deliberately does not retry: retry policy belongs to the
// session manager, which distinguishes initial-connect failures (surfaced
// to the caller) from reconnect failures (retried with backoff).
//
// Authentication is delegated to a TokenProvider so the vendor-specific
// SSO flow stays outside this repository.
package controlplane
