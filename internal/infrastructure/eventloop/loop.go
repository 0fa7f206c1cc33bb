package eventloop

import (
	"errors"
	"sync"
)

// ErrClosed is returned when posting to a loop that has been shut down.
var ErrClosed = errors.New("eventloop: loop closed")

// taskBuffer is the capacity of the task queue. Posting blocks briefly if
// the queue fills; with the session's short callbacks it never should.
const taskBuffer = 128

// Loop is a single-goroutine cooperative scheduler.
//
// Every function posted to the loop executes serially on one dedicated
// goroutine, in submission order. State that is only ever touched from
// posted functions therefore needs no locking.
//
// Thread Safety:
//   - Post and Close are safe for concurrent use from multiple goroutines.
type Loop struct {
	tasks chan func()

	quit     chan struct{}
	done     chan struct{}
	closeOne sync.Once
}

// New creates a Loop and starts its goroutine.
//
// Returns:
//   - *Loop: Running loop ready to accept tasks
func New() *Loop {
	l := &Loop{
		tasks: make(chan func(), taskBuffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// run consumes tasks until Close is called, then drains what is queued.
func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		case task := <-l.tasks:
			task()
		}
	}
}

// Post enqueues fn for execution on the loop goroutine.
//
// Post does not wait for fn to run. Functions posted from the same
// goroutine execute in the order they were posted.
//
// Parameters:
//   - fn: Function to execute on the loop
//
// Returns:
//   - error: ErrClosed if the loop has been shut down
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.quit:
		return ErrClosed
	default:
	}

	select {
	case l.tasks <- fn:
		return nil
	case <-l.quit:
		return ErrClosed
	}
}

// Run posts fn and waits for it to complete.
//
// Calling Run from inside a posted function deadlocks; loop-confined code
// should call its helpers directly instead.
//
// Parameters:
//   - fn: Function to execute on the loop
//
// Returns:
//   - error: ErrClosed if the loop has been shut down
func (l *Loop) Run(fn func()) error {
	completed := make(chan struct{})
	if err := l.Post(func() {
		defer close(completed)
		fn()
	}); err != nil {
		return err
	}
	<-completed
	return nil
}

// Close stops the loop after draining queued tasks.
//
// Close blocks until the loop goroutine has exited. It is safe to call
// more than once.
func (l *Loop) Close() {
	l.closeOne.Do(func() {
		close(l.quit)
	})
	<-l.done
}
