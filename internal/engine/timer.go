package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// flushTimer runs fn on a fixed interval in its own goroutine.
//
// Restart stops the running loop and waits for it to exit before starting
// the next one, so at most one loop is ever active.
type flushTimer struct {
	fn func()

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	starts atomic.Int64
	active atomic.Int64
}

func newFlushTimer(fn func()) *flushTimer {
	return &flushTimer{fn: fn}
}

// Restart (re)starts the loop with interval.
func (t *flushTimer) Restart(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done
	t.starts.Add(1)
	t.active.Add(1)

	go t.loop(interval, stop, done)
}

// Stop halts the loop, if any, and waits for it to exit.
func (t *flushTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *flushTimer) stopLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop, t.done = nil, nil
}

func (t *flushTimer) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer t.active.Add(-1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.fn()
		}
	}
}

// Active returns the number of running loops (0 or 1).
func (t *flushTimer) Active() int {
	return int(t.active.Load())
}

// Starts returns how many loops have been started.
func (t *flushTimer) Starts() int {
	return int(t.starts.Load())
}
