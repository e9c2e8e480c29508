// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package debounce coalesces bursts of calls into a single trailing call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs the most recent function passed to Do once no further
// call has arrived for the configured delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	latest  func()
	stopped bool
}

func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Do schedules fn, replacing any function still waiting. Every call pushes
// the deadline back by the full delay. After Stop, fn runs immediately.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		fn()
		return
	}

	d.latest = fn
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
	} else {
		d.timer.Reset(d.delay)
	}
	d.mu.Unlock()
}

// Pending reports whether a function is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest != nil
}

// Flush runs the waiting function now, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Stop runs the waiting function, if any, and makes later Do calls
// synchronous. It is safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.Flush()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.latest
	d.latest = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}
