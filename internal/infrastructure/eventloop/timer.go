package eventloop

import (
	"sync"
	"time"
)

// Timer schedules a single callback to run once after a delay.
//
// At most one invocation is pending per Timer: calling Start while a run
// is already scheduled supersedes it, so only the most recent Start fires.
// Cancel during the delay window prevents the callback from firing;
// once the callback has begun executing, Cancel has no effect on it.
//
// The callback runs on its own goroutine and may block; Start never
// blocks its caller.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Timer struct {
	mu       sync.Mutex
	callback func()
	timer    *time.Timer
	gen      uint64
}

// NewTimer creates a Timer for the given callback.
//
// Parameters:
//   - callback: Function to invoke when the timer fires; may block
//
// Returns:
//   - *Timer: Timer ready for Start
func NewTimer(callback func()) *Timer {
	return &Timer{callback: callback}
}

// Start schedules the callback to run once after delay.
//
// Any previously scheduled run that has not yet fired is cancelled.
//
// Parameters:
//   - delay: How long to wait before invoking the callback
func (t *Timer) Start(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	scheduled := t.gen

	if t.timer != nil {
		t.timer.Stop()
	}

	t.timer = time.AfterFunc(delay, func() {
		// A Start or Cancel after scheduling supersedes this run.
		t.mu.Lock()
		stale := t.gen != scheduled
		t.mu.Unlock()
		if stale {
			return
		}
		t.callback()
	})
}

// Cancel prevents a pending callback from firing.
//
// Cancel is a no-op when nothing is scheduled, and has no effect on a
// callback that has already begun executing.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
