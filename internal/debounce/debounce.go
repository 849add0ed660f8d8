// Package debounce delays propagation of a changing value until it has been
// stable for a quiet period.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDelay is the quiet period used when none is given
const DefaultDelay = 300 * time.Millisecond

// Pipe holds a downstream value that only follows the upstream value after
// the upstream has stopped changing for the configured delay. Every Set
// restarts the wait; values set during a burst are dropped.
type Pipe[T any] struct {
	clock    clockwork.Clock
	delay    time.Duration
	onChange func(T)

	mu      sync.Mutex
	value   T
	pending T
	timer   clockwork.Timer
	gen     uint64
}

// New creates a pipe whose downstream value starts at initial.
// onChange may be nil; when set it is called from the timer goroutine with
// every propagated value.
func New[T any](initial T, delay time.Duration, clock clockwork.Clock, onChange func(T)) *Pipe[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipe[T]{
		clock:    clock,
		delay:    delay,
		onChange: onChange,
		value:    initial,
	}
}

// Set records a new upstream value and restarts the quiet window
func (p *Pipe[T]) Set(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.pending = v
	p.timer = p.clock.AfterFunc(p.delay, func() { p.fire(gen) })
}

// fire propagates the pending value if the timer that scheduled it is still current
func (p *Pipe[T]) fire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.timer == nil {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.value = p.pending
	v := p.value
	onChange := p.onChange
	p.mu.Unlock()

	if onChange != nil {
		onChange(v)
	}
}

// Value returns the last propagated value
func (p *Pipe[T]) Value() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Pending reports whether a value is waiting for the quiet period to elapse
func (p *Pipe[T]) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Cancel drops any pending value without propagating it
func (p *Pipe[T]) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}

// Delay returns the configured quiet period
func (p *Pipe[T]) Delay() time.Duration {
	return p.delay
}
