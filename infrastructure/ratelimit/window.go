// Package ratelimit provides the two throttles the collection pipeline
// runs under: a coarse fixed-window request budget and a per-call pacing
// bucket. The window is the global cap the upstream enforces per key; the
// pacer smooths call cadence so bursts inside a window stay polite.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Window is a fixed-window request budget. Acquire consumes one slot,
// blocking for the remainder of the window when the budget is spent.
// Advisory only; the upstream still enforces its own cap.
type Window struct {
	limit     int
	windowLen time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int

	now func() time.Time
}

// NewWindow creates a budget of limit requests per window.
func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:     limit,
		windowLen: window,
		now:       time.Now,
	}
}

// Acquire blocks until a request slot is available or ctx is done.
func (w *Window) Acquire(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := w.now()
		if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.windowLen {
			w.windowStart = now
			w.count = 0
		}
		if w.count < w.limit {
			w.count++
			w.mu.Unlock()
			return nil
		}
		wait := w.windowLen - now.Sub(w.windowStart)
		w.mu.Unlock()

		log.Debug().Dur("wait", wait).Int("limit", w.limit).
			Msg("request budget exhausted, waiting for window reset")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining reports the unspent budget in the current window.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.windowStart.IsZero() || w.now().Sub(w.windowStart) >= w.windowLen {
		return w.limit
	}
	return w.limit - w.count
}

// Pacer enforces a minimum interval between consecutive calls.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer allowing one call per interval, with the first
// call passing immediately.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is due or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
