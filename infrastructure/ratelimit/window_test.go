package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_AllowsUpToLimitImmediately(t *testing.T) {
	w := NewWindow(3, time.Minute)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Acquire(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond,
		"acquires within budget must not block")
	assert.Equal(t, 0, w.Remaining())
}

func TestWindow_BlocksUntilWindowElapses(t *testing.T) {
	w := NewWindow(1, 80*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, w.Acquire(ctx))

	start := time.Now()
	require.NoError(t, w.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"second acquire should wait for the window remainder")
}

func TestWindow_ResetsAfterWindowElapses(t *testing.T) {
	w := NewWindow(2, 40*time.Millisecond)

	base := time.Now()
	w.now = func() time.Time { return base }

	ctx := context.Background()
	require.NoError(t, w.Acquire(ctx))
	require.NoError(t, w.Acquire(ctx))
	assert.Equal(t, 0, w.Remaining())

	// Window elapsed: the count resets without blocking.
	w.now = func() time.Time { return base.Add(41 * time.Millisecond) }
	require.NoError(t, w.Acquire(ctx))
	assert.Equal(t, 1, w.Remaining())
}

func TestWindow_AcquireHonorsCancellation(t *testing.T) {
	w := NewWindow(1, time.Hour)

	require.NoError(t, w.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := w.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPacer_FirstCallPassesImmediately(t *testing.T) {
	p := NewPacer(time.Second)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPacer_SpacesConsecutiveCalls(t *testing.T) {
	p := NewPacer(60 * time.Millisecond)

	ctx := context.Background()
	require.NoError(t, p.Wait(ctx))

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPacer_ZeroIntervalNeverBlocks(t *testing.T) {
	p := NewPacer(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
}
