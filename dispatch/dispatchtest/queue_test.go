package dispatchtest

import (
	"testing"
	"time"
)

func TestRunUntilIdleDrainsNestedPosts(t *testing.T) {
	q := NewQueue()
	var order []int
	q.Post(func() {
		order = append(order, 1)
		q.Post(func() { order = append(order, 3) })
	})
	q.Post(func() { order = append(order, 2) })

	if n := q.RunUntilIdle(); n != 3 {
		t.Fatalf("ran %d tasks, want 3", n)
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("order %v", order)
		}
	}
}

func TestAdvanceFiresTimersInDueOrder(t *testing.T) {
	q := NewQueue()
	var fired []string
	q.PostDelayed(2*time.Second, func() { fired = append(fired, "b") })
	q.PostDelayed(time.Second, func() { fired = append(fired, "a") })
	q.PostDelayed(3*time.Second, func() { fired = append(fired, "c") })

	q.Advance(2 * time.Second)
	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("fired %v", fired)
	}
	q.Advance(time.Second)
	if len(fired) != 3 || fired[2] != "c" {
		t.Fatalf("fired %v", fired)
	}
}

func TestCanceledTimerDoesNotFire(t *testing.T) {
	q := NewQueue()
	fired := false
	timer := q.PostDelayed(time.Second, func() { fired = true })
	if !timer.Cancel() {
		t.Fatal("first cancel must succeed")
	}
	if timer.Cancel() {
		t.Fatal("second cancel must report already stopped")
	}
	q.Advance(5 * time.Second)
	if fired {
		t.Fatal("canceled timer fired")
	}
}

func TestTimerChainsAcrossAdvance(t *testing.T) {
	q := NewQueue()
	count := 0
	var schedule func()
	schedule = func() {
		q.PostDelayed(time.Second, func() {
			count++
			if count < 3 {
				schedule()
			}
		})
	}
	schedule()

	q.Advance(10 * time.Second)
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}
