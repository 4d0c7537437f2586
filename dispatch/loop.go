package dispatch

import (
	"sync"
	"time"
)

const taskChanSize = 64

// Loop is the production Queue: one goroutine draining a task channel.
// Timers fire through time.AfterFunc and re-post onto the loop, so timer
// bodies are serialized with everything else.
type Loop struct {
	tasks chan Task

	muClose sync.Mutex
	done    chan struct{}
}

func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan Task, taskChanSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case <-l.done:
			return
		case t := <-l.tasks:
			t()
		}
	}
}

// Post queues t. Tasks posted after Stop are dropped.
func (l *Loop) Post(t Task) {
	select {
	case <-l.done:
	case l.tasks <- t:
	}
}

// PostDelayed schedules t to be posted after d.
func (l *Loop) PostDelayed(d time.Duration, t Task) *Timer {
	at := time.AfterFunc(d, func() {
		l.Post(t)
	})
	return NewTimer(at.Stop)
}

// Stop shuts the loop down. Already queued tasks may be dropped.
func (l *Loop) Stop() {
	l.muClose.Lock()
	defer l.muClose.Unlock()

	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
