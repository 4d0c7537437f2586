// Package dispatchtest provides a manually pumped dispatch.Queue with a
// virtual clock, so state machines can be driven deterministically in
// tests: nothing runs until the test calls RunUntilIdle or Advance.
package dispatchtest

import (
	"sort"
	"time"

	"github.com/corvidlabs/bthost/dispatch"
)

type delayed struct {
	due      time.Time
	task     dispatch.Task
	canceled bool
	seq      int
}

// Queue implements dispatch.Queue with manual pumping.
type Queue struct {
	now    time.Time
	ready  []dispatch.Task
	timers []*delayed
	seq    int
}

func NewQueue() *Queue {
	return &Queue{now: time.Unix(0, 0)}
}

func (q *Queue) Post(t dispatch.Task) {
	q.ready = append(q.ready, t)
}

func (q *Queue) PostDelayed(d time.Duration, t dispatch.Task) *dispatch.Timer {
	q.seq++
	e := &delayed{due: q.now.Add(d), task: t, seq: q.seq}
	q.timers = append(q.timers, e)
	return dispatch.NewTimer(func() bool {
		if e.canceled {
			return false
		}
		e.canceled = true
		return true
	})
}

// Now returns the virtual time.
func (q *Queue) Now() time.Time {
	return q.now
}

// RunUntilIdle runs queued tasks, including ones posted while running,
// until none remain. Returns the number of tasks executed.
func (q *Queue) RunUntilIdle() int {
	n := 0
	for len(q.ready) > 0 {
		t := q.ready[0]
		q.ready = q.ready[1:]
		t()
		n++
	}
	return n
}

// Advance moves the virtual clock forward, firing due timers in order,
// and pumps the queue to idle after each fire.
func (q *Queue) Advance(d time.Duration) {
	q.RunUntilIdle()
	deadline := q.now.Add(d)
	for {
		next := q.nextDue(deadline)
		if next == nil {
			break
		}
		q.now = next.due
		next.canceled = true // consumed
		q.ready = append(q.ready, next.task)
		q.RunUntilIdle()
	}
	q.now = deadline
	q.RunUntilIdle()
}

func (q *Queue) nextDue(deadline time.Time) *delayed {
	live := q.timers[:0]
	for _, e := range q.timers {
		if !e.canceled {
			live = append(live, e)
		}
	}
	q.timers = live
	sort.SliceStable(q.timers, func(i, j int) bool {
		if q.timers[i].due.Equal(q.timers[j].due) {
			return q.timers[i].seq < q.timers[j].seq
		}
		return q.timers[i].due.Before(q.timers[j].due)
	})
	for _, e := range q.timers {
		if !e.due.After(deadline) {
			return e
		}
	}
	return nil
}
