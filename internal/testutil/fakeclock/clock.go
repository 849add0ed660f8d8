// Package fakeclock provides a fake clock that counts live timers.
package fakeclock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CountingClock is a fake clock that also tracks how many AfterFunc timers
// are live (armed and neither stopped nor fired).
type CountingClock struct {
	*clockwork.FakeClock

	mu      sync.Mutex
	active  int
	created int
}

// NewCountingClock creates a CountingClock backed by a fresh fake clock
func NewCountingClock() *CountingClock {
	return &CountingClock{FakeClock: clockwork.NewFakeClock()}
}

// AfterFunc arms a tracked timer
func (c *CountingClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	c.mu.Lock()
	c.active++
	c.created++
	c.mu.Unlock()

	ct := &countingTimer{clock: c}
	ct.Timer = c.FakeClock.AfterFunc(d, func() {
		if ct.finish() {
			f()
		}
	})
	return ct
}

// Active returns the number of live timers
func (c *CountingClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Created returns the number of timers armed since the clock was created
func (c *CountingClock) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

type countingTimer struct {
	clockwork.Timer
	clock *CountingClock

	mu   sync.Mutex
	done bool
}

// finish marks the timer as no longer live; it reports false if it already was
func (t *countingTimer) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true

	t.clock.mu.Lock()
	t.clock.active--
	t.clock.mu.Unlock()
	return true
}

func (t *countingTimer) Stop() bool {
	if t.Timer.Stop() {
		t.finish()
		return true
	}
	return false
}
