// Package bridge maintains the persistent MQTT-over-WSS session to the
// cloud broker.
//
// The package is built around a single-goroutine scheduler loop that
// owns all session state. The pieces:
//
//   - Session: the session manager. Connect, Subscribe, Disconnect,
//     handler registration, and the reconnect-with-backoff state
//     machine. All of its mutable state is confined to the loop.
//
//   - Transport: the wire-protocol client interface, implemented over
//     the paho MQTT library for production. The transport owns framing
//     and acknowledgment semantics; the session owns connection policy,
//     which is why the library's built-in reconnect and subscription
//     restoration are disabled.
//
//   - Adapter: serialises the transport's callbacks onto the scheduler
//     loop and runs the transport's housekeeping routine for the
//     lifetime of each connection.
//
//   - Registry: ordered, idempotent application callbacks per event
//     category (connect, disconnect, update). Handlers run on their own
//     goroutines and never block the session.
//
// Connection recovery re-resolves the broker endpoint through the
// control plane on every attempt, because both the endpoint and the
// credentials embedded in the connection path rotate. A long-interval
// keepalive timer cycles the connection proactively before credentials
// expire; user-initiated disconnects are terminal and never trigger
// recovery.
package bridge
