package engine

import (
	"sync"
)

// commandKind distinguishes the sequences the worker runs.
type commandKind int

const (
	// commandInitial is the first Configure: load-or-refresh, flush, start
	// the timer, subscribe to the suspend signal.
	commandInitial commandKind = iota + 1
	// commandReconfigure is any later Configure: forced refresh, flush,
	// restart the timer.
	commandReconfigure
)

func (k commandKind) String() string {
	switch k {
	case commandInitial:
		return "initial"
	case commandReconfigure:
		return "reconfigure"
	default:
		return "unknown"
	}
}

// command is one Configure sequence waiting for the worker.
type command struct {
	kind commandKind
	done chan struct{}
}

// commandQueue is a thread-safe FIFO of configure sequences.
//
// Configure may be called from any goroutine; the worker dequeues and runs
// sequences one at a time so a slow refresh from an earlier Configure can
// never land after a later one.
//
// The signal channel enables context-aware waiting in the worker loop.
type commandQueue struct {
	mu       sync.Mutex
	commands []command
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]command, 0, 4),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds cmd to the back of the queue.
// Returns false if the queue is closed.
func (q *commandQueue) Enqueue(cmd command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.commands = append(q.commands, cmd)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front command without blocking.
func (q *commandQueue) TryDequeue() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return command{}, false
	}

	cmd := q.commands[0]
	q.commands[0] = command{}
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}
	return cmd, true
}

// Wait returns a channel that signals when commands may be available.
// The channel is closed by Close.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close rejects further commands and returns those still queued so the
// caller can release their waiters.
func (q *commandQueue) Close() []command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	rest := q.commands
	q.commands = nil
	return rest
}
