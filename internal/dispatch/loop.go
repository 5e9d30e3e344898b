// Summary: Single-goroutine dispatch loop that plays the role of the editor UI thread.
// All feature-gate, busy and session state is mutated only from funcs running here.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"ghosttext/internal/logging"
)

// ErrStopped is returned when work is posted to a loop that has stopped.
var ErrStopped = errors.New("dispatch: loop stopped")

const defaultQueue = 64

// Loop runs posted funcs one at a time, in FIFO order, on a single goroutine.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates a loop with the given queue size (<=0 picks a default).
func NewLoop(queue int) *Loop {
	if queue <= 0 {
		queue = defaultQueue
	}
	return &Loop{tasks: make(chan func(), queue), done: make(chan struct{})}
}

// Run executes posted funcs until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logf("dispatch ", "%spanic in loop task: %v%s", logging.AnsiRed, r, logging.AnsiBase)
		}
	}()
	fn()
}

// Stop ends Run; queued funcs that have not started are dropped.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post queues fn without waiting for it to run. It must not be called from
// inside a loop func when the queue may be full.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Do runs fn on the loop and waits for it to finish. If ctx ends first, Do
// returns ctx.Err(); fn may still run later, so callers must ignore anything
// fn writes once Do has failed. Calling Do from a loop func deadlocks.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		defer close(ran)
		fn()
	}
	select {
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.tasks <- wrapped:
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}
