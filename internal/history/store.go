package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gophyn/phynbridge/internal/infrastructure/database"
	"github.com/gophyn/phynbridge/internal/infrastructure/logging"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// DeviceState is the last known state of a device.
type DeviceState struct {
	DeviceID  string
	Topic     string
	Data      map[string]any
	UpdatedAt time.Time
}

// Entry is one recorded device update.
type Entry struct {
	ID         int64
	DeviceID   string
	Topic      string
	Data       map[string]any
	ReceivedAt time.Time
}

// Store persists device updates to SQLite: the last known state per
// device plus an append-only history.
type Store struct {
	db *database.DB
}

// NewStore creates a Store over an open database.
//
// The schema is managed by migrations; callers run db.Migrate before
// constructing the store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record persists a device update: the device_states row is upserted and
// a device_history row appended, atomically.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device the update concerns
//   - topic: Broker topic the update arrived on
//   - data: Decoded update payload
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Record(ctx context.Context, deviceID, topic string, data map[string]any) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if data == nil {
		data = map[string]any{}
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling update: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO device_states (device_id, topic, data, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
		   topic = excluded.topic,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		deviceID, topic, string(dataJSON), now,
	); err != nil {
		return fmt.Errorf("upserting device state: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO device_history (device_id, topic, data, received_at) VALUES (?, ?, ?, ?)",
		deviceID, topic, string(dataJSON), now,
	); err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	return nil
}

// LastState returns the last known state of a device.
//
// Returns:
//   - *DeviceState: The stored state
//   - error: ErrNotFound when the device has never reported
func (s *Store) LastState(ctx context.Context, deviceID string) (*DeviceState, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	var (
		state     DeviceState
		dataJSON  string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT device_id, topic, data, updated_at FROM device_states WHERE device_id = ?",
		deviceID,
	).Scan(&state.DeviceID, &state.Topic, &dataJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying device state: %w", err)
	}

	if err := json.Unmarshal([]byte(dataJSON), &state.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	if state.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &state, nil
}

// History returns recent updates for a device, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device to query
//   - limit: Maximum entries to return (default 50, max 200)
func (s *Store) History(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, topic, data, received_at
		 FROM device_history
		 WHERE device_id = ?
		 ORDER BY received_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry      Entry
			dataJSON   string
			receivedAt string
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.Topic, &dataJSON, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &entry.Data); err != nil {
			return nil, fmt.Errorf("unmarshalling entry: %w", err)
		}
		if entry.ReceivedAt, err = time.Parse(time.RFC3339, receivedAt); err != nil {
			return nil, fmt.Errorf("parsing received_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

// Devices returns the identifiers of all devices with a stored state,
// sorted.
func (s *Store) Devices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT device_id FROM device_states ORDER BY device_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		devices = append(devices, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Prune deletes history entries older than the given duration. The last
// known state per device is never pruned.
//
// Returns:
//   - int64: Number of rows deleted
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM device_history WHERE received_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// PrunePeriodically prunes history entries older than retention, once
// immediately and then every interval, until the context is cancelled.
// Run it on its own goroutine.
//
// Parameters:
//   - ctx: Stops the pruner when cancelled
//   - retention: History entries older than this are deleted
//   - interval: Time between prune passes
//   - logger: Destination for prune outcomes
func (s *Store) PrunePeriodically(ctx context.Context, retention, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		deleted, err := s.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error("pruning history", "error", err)
		case deleted > 0:
			logger.Info("history pruned", "rows", deleted, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
