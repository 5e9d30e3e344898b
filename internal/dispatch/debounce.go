package dispatch

import (
	"context"
	"sync"
	"time"
)

// Debouncer arms at most one delayed task at a time. Scheduling a new task
// cancels and releases the pending one first, so the last request wins.
type Debouncer struct {
	loop   *Loop
	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
}

// NewDebouncer returns a debouncer whose tasks run on loop.
func NewDebouncer(loop *Loop) *Debouncer {
	return &Debouncer{loop: loop}
}

// Schedule runs fn on the loop after delay unless another Schedule or Stop
// happens first. The ctx handed to fn is cancelled as soon as fn returns.
func (d *Debouncer) Schedule(delay time.Duration, fn func(ctx context.Context)) {
	if delay < 0 {
		delay = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.timer = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		err := d.loop.Post(func() {
			defer cancel()
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		})
		if err != nil {
			cancel()
		}
	})
}

// Stop cancels the pending task, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
