// Package dispatch provides the cooperative single-threaded execution
// model the host stack runs on. Every asynchronous callback in the stack
// is posted to a Queue and runs serialized with all other work on that
// queue; nothing blocks, and the only suspension points are queued tasks
// and timers.
package dispatch

import "time"

// Task is a unit of work to run on a queue.
type Task func()

// Queue serializes tasks. Post never runs the task synchronously on the
// caller's stack.
type Queue interface {
	Post(Task)
	PostDelayed(d time.Duration, t Task) *Timer
}

// Timer is a handle to a delayed task. Cancel reports whether the task
// was stopped before it was posted.
type Timer struct {
	stop func() bool
}

// NewTimer wraps a stop function into a Timer handle. Exposed so
// alternative Queue implementations (tests) can mint handles.
func NewTimer(stop func() bool) *Timer {
	return &Timer{stop: stop}
}

func (t *Timer) Cancel() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}
