// Package httpx wraps single HTTP calls with bounded exponential-backoff
// retry behind a circuit breaker. Transport failures (connection errors,
// timeouts, non-2xx statuses) are retried; a well-formed response is
// returned to the caller untouched, so application-level failures inside
// the body never burn retry budget.
package httpx

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"tokenradar/infrastructure/metrics"
)

const (
	// DefaultAttempts is the total attempt budget per call.
	DefaultAttempts = 3
	// DefaultBackoffFactor yields waits of ~0.3s, 0.6s, 1.2s.
	DefaultBackoffFactor = 300 * time.Millisecond
)

// Config tunes the caller. Zero values fall back to defaults.
type Config struct {
	Attempts      int
	BackoffFactor time.Duration

	// Breaker settings; the breaker opens after BreakerFailures consecutive
	// transport failures and probes again after BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Caller retries a request function up to the attempt budget. It never
// panics past this boundary; after the budget is spent the last error is
// returned.
type Caller struct {
	attempts int
	backoff  time.Duration
	breaker  *gobreaker.CircuitBreaker

	sleep func(context.Context, time.Duration) error
}

// New creates a Caller from cfg.
func New(cfg Config) *Caller {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "upstream",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Caller{
		attempts: cfg.Attempts,
		backoff:  cfg.BackoffFactor,
		breaker:  breaker,
		sleep:    sleepCtx,
	}
}

// RequestFunc performs one attempt of the underlying call.
type RequestFunc func() (*http.Response, error)

// Do invokes fn up to the attempt budget. Non-2xx statuses count as
// transport failures and are retried; the response body of a failed
// attempt is drained and closed. The returned response's body is the
// caller's to close.
func (c *Caller) Do(ctx context.Context, op string, fn RequestFunc) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			metrics.RetryAttempts.Inc()
			wait := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt-1)))
			log.Warn().Str("op", op).Int("attempt", attempt+1).
				Dur("backoff", wait).Err(lastErr).
				Msg("retrying upstream call")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		res, err := c.breaker.Execute(func() (interface{}, error) {
			resp, err := fn()
			if err != nil {
				return nil, err
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				drain(resp)
				return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
			}
			return resp, nil
		})
		if err != nil {
			lastErr = err
			metrics.UpstreamRequests.WithLabelValues(op, "error").Inc()
			continue
		}

		metrics.UpstreamRequests.WithLabelValues(op, "ok").Inc()
		return res.(*http.Response), nil
	}

	return nil, fmt.Errorf("%s: %d attempts exhausted: %w", op, c.attempts, lastErr)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
	resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
