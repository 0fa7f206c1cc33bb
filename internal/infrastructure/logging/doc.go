// Package logging provides structured logging for the Phyn bridge.
//
// It wraps log/slog behind one concrete Logger type so constructors
// across the codebase take the same dependency. Every record carries
// the service name and build version; subsystems derive their logger
// with Component so records stay attributable:
//
//	logger := logging.New(cfg.Logging, version)
//	sessionLog := logger.Component("bridge")
//	sessionLog.Info("session established", "host", host)
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Discard returns a silent logger for tests.
//
// # Security
//
// Never log the account bearer token, the broker URL query string, or
// message payload contents at error level. Payloads may carry
// account-identifying data.
package logging
