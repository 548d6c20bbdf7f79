// Package debounce coalesces bursts of values into a single trailing call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delivers the most recent value passed to Trigger once no newer
// value has arrived for the configured wait. Calls to fn are serialised and
// never deliver a value older than one already delivered.
type Debouncer[T any] struct {
	wait time.Duration
	fn   func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	armed   bool
	stopped bool
	seq     uint64

	callMu    sync.Mutex
	delivered uint64
}

// New returns a Debouncer that calls fn after wait. A zero wait delivers
// every value synchronously.
func New[T any](wait time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{wait: wait, fn: fn}
}

// Trigger records v as the latest value and restarts the wait.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.seq++
	seq := d.seq
	if d.wait <= 0 {
		d.mu.Unlock()
		d.call(v, seq)
		return
	}
	d.pending = v
	d.armed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, func() { d.fire(seq) })
	d.mu.Unlock()
}

// fire delivers the pending value if no newer Trigger superseded seq.
func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if !d.armed || d.stopped || seq != d.seq {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.armed = false
	d.mu.Unlock()
	d.call(v, seq)
}

// Pending reports whether a value is waiting to be delivered.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Stop discards any pending value. Later Triggers are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
	}
}

// call runs fn unless a newer value has already been delivered.
func (d *Debouncer[T]) call(v T, seq uint64) {
	d.callMu.Lock()
	defer d.callMu.Unlock()
	if seq <= d.delivered {
		return
	}
	d.delivered = seq
	d.fn(v)
}
