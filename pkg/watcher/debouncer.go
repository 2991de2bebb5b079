// Package watcher reports changes to the node database file, coalescing the
// bursts of writes SQLite makes to the database and its WAL.
package watcher

import (
	"sync"
	"time"
)

// DefaultDebounceDuration is the default quiet period before firing.
const DefaultDebounceDuration = 250 * time.Millisecond

// Debouncer runs fn once after Trigger stops being called for the configured
// duration.
type Debouncer struct {
	duration time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	pending bool
}

// NewDebouncer returns a debouncer for fn. A zero duration selects
// DefaultDebounceDuration.
func NewDebouncer(duration time.Duration, fn func()) *Debouncer {
	if duration <= 0 {
		duration = DefaultDebounceDuration
	}
	return &Debouncer{duration: duration, fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	seq := d.seq
	d.pending = true

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, func() {
		if d.claim(seq) {
			d.fn()
		}
	})
}

// claim reports whether seq is still the latest trigger and marks it done.
// A timer whose Stop lost the race checks here and bails out.
func (d *Debouncer) claim(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.seq || !d.pending {
		return false
	}
	d.pending = false
	d.timer = nil
	return true
}

// Flush runs a pending callback immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.seq++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.fn()
}

// Cancel drops any pending callback.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a callback is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Duration returns the quiet period.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}
