// Package snapshot persists the most recent scored result set per dataset
// behind a Store interface. Loads never error toward the caller: missing,
// corrupt or expired snapshots all read as absent and fall through to a
// live collection. Saves replace the previous generation atomically enough
// that a concurrent load never observes a half-written snapshot.
package snapshot

import (
	"context"
	"time"

	"tokenradar/domain"
)

// TokenSnapshot is one complete scored token dataset generation.
type TokenSnapshot struct {
	CapturedAt time.Time            `json:"captured_at"`
	RunID      string               `json:"run_id"`
	Records    []domain.ScoredToken `json:"records"`
}

// TraderSnapshot is one complete trader dataset generation, including the
// per-trader trade history child rows.
type TraderSnapshot struct {
	CapturedAt time.Time       `json:"captured_at"`
	RunID      string          `json:"run_id"`
	Records    []domain.Trader `json:"records"`
}

// Store is a durable key-value snapshot with expiry checked at read time.
type Store interface {
	// LoadTokens returns the snapshot for key, or absent when it is
	// missing, unreadable or older than the store's token max-age.
	LoadTokens(ctx context.Context, key string) (*TokenSnapshot, bool)
	// SaveTokens replaces the snapshot for key.
	SaveTokens(ctx context.Context, key string, snap *TokenSnapshot) error

	LoadTraders(ctx context.Context, key string) (*TraderSnapshot, bool)
	SaveTraders(ctx context.Context, key string, snap *TraderSnapshot) error
}

// MaxAges holds the per-dataset expiry policy. Tokens move slowly; the
// trader view is the fast-moving variant.
type MaxAges struct {
	Tokens  time.Duration
	Traders time.Duration
}

// DefaultMaxAges matches the production expiry policy.
var DefaultMaxAges = MaxAges{
	Tokens:  30 * time.Minute,
	Traders: 60 * time.Second,
}

func (m MaxAges) tokens() time.Duration {
	if m.Tokens <= 0 {
		return DefaultMaxAges.Tokens
	}
	return m.Tokens
}

func (m MaxAges) traders() time.Duration {
	if m.Traders <= 0 {
		return DefaultMaxAges.Traders
	}
	return m.Traders
}

// expired reports whether a snapshot captured at capturedAt has passed its
// max-age as of now. Expired snapshots are logically absent but physically
// left in place.
func expired(capturedAt time.Time, maxAge time.Duration, now time.Time) bool {
	return capturedAt.IsZero() || now.Sub(capturedAt) >= maxAge
}
