package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gophyn/phynbridge/internal/infrastructure/eventloop"
	"github.com/gophyn/phynbridge/internal/infrastructure/logging"
)

// Adapter binds the transport's callback surface to the scheduler loop.
//
// The transport invokes its callbacks from its own goroutines. The
// adapter forwards every callback onto the single loop goroutine, so
// session state is only ever mutated from one place, and runs the
// transport's housekeeping routine at a fixed interval for the lifetime
// of each connection: started on a successful connect acknowledgment,
// stopped when the connection closes or when housekeeping itself reports
// non-success.
type Adapter struct {
	loop     *eventloop.Loop
	interval time.Duration
	logger   *logging.Logger

	mu          sync.Mutex
	stopHousekp context.CancelFunc
}

// NewAdapter creates an Adapter for the given loop.
//
// Parameters:
//   - loop: Scheduler loop the session state lives on
//   - interval: How often to run the transport's housekeeping routine
//   - logger: Structured logger
func NewAdapter(loop *eventloop.Loop, interval time.Duration, logger *logging.Logger) *Adapter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Adapter{
		loop:     loop,
		interval: interval,
		logger:   logger.Component("adapter"),
	}
}

// Bind wraps the session's event sinks for installation on a transport.
//
// Every callback in the returned TransportEvents forwards onto the loop;
// the connack and disconnect callbacks additionally manage the
// housekeeping task's lifecycle.
func (a *Adapter) Bind(t Transport, sinks TransportEvents) TransportEvents {
	return TransportEvents{
		OnConnack: func(code ConnackCode) {
			if code == ConnackAccepted {
				a.startHousekeeping(t)
			}
			a.forward("connack", func() { sinks.OnConnack(code) })
		},
		OnDisconnect: func(err error) {
			a.stopHousekeeping()
			a.forward("disconnect", func() { sinks.OnDisconnect(err) })
		},
		OnSubscribeAck: func(id uint16, err error) {
			a.forward("suback", func() { sinks.OnSubscribeAck(id, err) })
		},
		OnMessage: func(topic string, payload []byte) {
			a.forward("message", func() { sinks.OnMessage(topic, payload) })
		},
	}
}

// forward posts a callback onto the loop. During shutdown the loop may
// already be closed; late transport callbacks are then dropped.
func (a *Adapter) forward(kind string, fn func()) {
	if err := a.loop.Post(fn); err != nil {
		a.logger.Warn("dropping transport callback", "kind", kind, "error", err)
	}
}

// startHousekeeping starts the periodic housekeeping task for a new
// connection, superseding any task left over from a previous one.
func (a *Adapter) startHousekeeping(t Transport) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopHousekp != nil {
		a.stopHousekp()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopHousekp = cancel

	go a.housekeep(ctx, t)
}

// stopHousekeeping cancels the housekeeping task, if one is running.
func (a *Adapter) stopHousekeeping() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopHousekp != nil {
		a.stopHousekp()
		a.stopHousekp = nil
	}
}

// housekeep runs the transport's housekeeping routine at the configured
// interval until it reports non-success or the task is cancelled.
func (a *Adapter) housekeep(ctx context.Context, t Transport) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Housekeep(); err != nil {
				a.logger.Debug("housekeeping finished", "reason", err)
				return
			}
		}
	}
}

// Close stops any running housekeeping task.
func (a *Adapter) Close() {
	a.stopHousekeeping()
}
