package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gophyn/phynbridge/internal/infrastructure/database"
	"github.com/gophyn/phynbridge/internal/infrastructure/logging"
	"github.com/gophyn/phynbridge/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewStore(db)
}

func TestRecordAndLastState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := map[string]any{"pressure": 42.0, "flow": 1.5}
	if err := store.Record(ctx, "dev123", "prd/app_subscriptions/dev123", data); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	state, err := store.LastState(ctx, "dev123")
	if err != nil {
		t.Fatalf("LastState() error = %v", err)
	}
	if state.DeviceID != "dev123" {
		t.Errorf("DeviceID = %q, want %q", state.DeviceID, "dev123")
	}
	if state.Topic != "prd/app_subscriptions/dev123" {
		t.Errorf("Topic = %q", state.Topic)
	}
	if got := state.Data["pressure"]; got != 42.0 {
		t.Errorf("Data[pressure] = %v, want 42", got)
	}
	if state.UpdatedAt.IsZero() {
		t.Error("UpdatedAt is zero")
	}
}

func TestLastStateOverwritten(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "dev123", "t", map[string]any{"pressure": 1.0}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, "dev123", "t", map[string]any{"pressure": 2.0}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	state, err := store.LastState(ctx, "dev123")
	if err != nil {
		t.Fatalf("LastState() error = %v", err)
	}
	if got := state.Data["pressure"]; got != 2.0 {
		t.Errorf("Data[pressure] = %v, want the most recent value 2", got)
	}
}

func TestLastStateNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LastState(context.Background(), "unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("LastState() error = %v, want ErrNotFound", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := store.Record(ctx, "dev123", "t", map[string]any{"seq": float64(i)}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := store.History(ctx, "dev123", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if got := entries[0].Data["seq"]; got != 3.0 {
		t.Errorf("entries[0] seq = %v, want 3 (newest first)", got)
	}
	if got := entries[2].Data["seq"]; got != 1.0 {
		t.Errorf("entries[2] seq = %v, want 1", got)
	}
}

func TestHistoryLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Record(ctx, "dev123", "t", map[string]any{"seq": float64(i)}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := store.History(ctx, "dev123", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
}

func TestHistoryIsolatedPerDevice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "devA", "t", map[string]any{"v": 1.0}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, "devB", "t", map[string]any{"v": 2.0}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := store.History(ctx, "devA", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 || entries[0].DeviceID != "devA" {
		t.Errorf("devA history = %+v, want exactly its own entry", entries)
	}
}

func TestDevices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"devB", "devA"} {
		if err := store.Record(ctx, id, "t", map[string]any{}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	devices, err := store.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 2 || devices[0] != "devA" || devices[1] != "devB" {
		t.Errorf("Devices() = %v, want [devA devB]", devices)
	}
}

func TestPruneKeepsLastState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "dev123", "t", map[string]any{"v": 1.0}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// Nothing is old enough to prune.
	deleted, err := store.Prune(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("Prune() deleted %d rows, want 0", deleted)
	}

	// Backdate the history entry and prune again.
	if _, err := store.db.ExecContext(ctx,
		"UPDATE device_history SET received_at = ?",
		time.Now().UTC().Add(-2*time.Hour).Format(time.RFC3339),
	); err != nil {
		t.Fatalf("backdating entry: %v", err)
	}
	deleted, err = store.Prune(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted %d rows, want 1", deleted)
	}

	// The last state survives pruning.
	if _, err := store.LastState(ctx, "dev123"); err != nil {
		t.Errorf("LastState() after prune error = %v", err)
	}
}

func TestPruneRejectsNonPositive(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Prune(context.Background(), 0); err == nil {
		t.Error("Prune(0) succeeded, want error")
	}
}

func TestPrunePeriodicallyDeletesExpired(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Record(ctx, "dev123", "t", map[string]any{"v": 1.0}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := store.db.ExecContext(ctx,
		"UPDATE device_history SET received_at = ?",
		time.Now().UTC().Add(-2*time.Hour).Format(time.RFC3339),
	); err != nil {
		t.Fatalf("backdating entry: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.PrunePeriodically(ctx, time.Hour, 10*time.Millisecond, logging.Discard())
	}()

	deadline := time.After(2 * time.Second)
	for {
		entries, err := store.History(ctx, "dev123", 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(entries) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expired history entry never pruned")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The last state survives the pruner.
	if _, err := store.LastState(ctx, "dev123"); err != nil {
		t.Errorf("LastState() after pruning error = %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop on context cancellation")
	}
}
