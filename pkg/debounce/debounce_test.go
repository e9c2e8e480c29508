// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_RunsOnce(t *testing.T) {
	t.Parallel()

	d := New(20 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	d.Do(func() { calls.Add(1) })

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, d.Pending())
}

func TestDebouncer_KeepsLatest(t *testing.T) {
	t.Parallel()

	d := New(30 * time.Millisecond)
	defer d.Stop()

	var last atomic.Int32
	var calls atomic.Int32
	for i := int32(1); i <= 5; i++ {
		d.Do(func() {
			calls.Add(1)
			last.Store(i)
		})
	}
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), last.Load())

	// nothing else fires afterwards
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_Flush(t *testing.T) {
	t.Parallel()

	d := New(time.Hour)
	defer d.Stop()

	var calls atomic.Int32
	d.Do(func() { calls.Add(1) })
	d.Flush()

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, d.Pending())

	d.Flush()
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	t.Parallel()

	d := New(time.Hour)

	var calls atomic.Int32
	d.Do(func() { calls.Add(1) })
	d.Stop()
	assert.Equal(t, int32(1), calls.Load(), "stop runs the pending call")

	d.Stop()
	d.Do(func() { calls.Add(1) })
	assert.Equal(t, int32(2), calls.Load(), "calls after stop run inline")
}
