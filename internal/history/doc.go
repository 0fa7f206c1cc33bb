// Package history persists device updates to the bridge's local SQLite
// store.
//
// Two tables back it: device_states holds the last known state per
// device (upserted on every update), device_history an append-only log
// of updates with a pruning operation for retention. Payloads are stored
// as JSON text; the schema lives in the migrations package.
package history
