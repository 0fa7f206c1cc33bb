package bridge

import (
	"errors"
	"testing"
)

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry()

	handler := func(Event, Update) {}
	if err := r.Add(EventConnect, handler); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got := r.Count(EventConnect); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestRegistryAddIdempotent(t *testing.T) {
	r := NewRegistry()

	handler := func(Event, Update) {}
	for i := 0; i < 3; i++ {
		if err := r.Add(EventUpdate, handler); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if got := r.Count(EventUpdate); got != 1 {
		t.Errorf("Count() after duplicate registration = %d, want 1", got)
	}
}

func TestRegistryAddDistinctHandlers(t *testing.T) {
	r := NewRegistry()

	if err := r.Add(EventUpdate, func(Event, Update) {}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(EventUpdate, func(Event, Update) {}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got := r.Count(EventUpdate); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestRegistryAddUnknownEvent(t *testing.T) {
	r := NewRegistry()

	err := r.Add(Event("bogus"), func(Event, Update) {})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Add() error = %v, want ErrUnknownEvent", err)
	}
}

func TestRegistryAddNilHandler(t *testing.T) {
	r := NewRegistry()

	if err := r.Add(EventConnect, nil); err == nil {
		t.Error("Add(nil) succeeded, want error")
	}
}

func TestRegistryDispatchOrder(t *testing.T) {
	r := NewRegistry()

	var order []int
	make := func(n int) Handler {
		return func(Event, Update) { order = append(order, n) }
	}
	for i := 1; i <= 3; i++ {
		if err := r.Add(EventConnect, make(i)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	// Invoke the snapshot synchronously to observe registration order.
	for _, h := range r.handlersFor(EventConnect) {
		h(EventConnect, Update{})
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("dispatch order = %v, want [1 2 3]", order)
	}
}

func TestRegistryHandlersForSnapshot(t *testing.T) {
	r := NewRegistry()

	if err := r.Add(EventDisconnect, func(Event, Update) {}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	snapshot := r.handlersFor(EventDisconnect)
	if err := r.Add(EventDisconnect, func(Event, Update) {}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if len(snapshot) != 1 {
		t.Errorf("snapshot length = %d, want 1 (snapshot must not track later additions)", len(snapshot))
	}
}
