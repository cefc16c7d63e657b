// Package screener is the pipeline facade: it answers "all tokens" and
// "all traders" from the snapshot cache when fresh enough, and otherwise
// drives a collection run, scores the batch and writes the new snapshot
// through. A per-key refresh guard keeps two refreshes from racing to
// overwrite the same snapshot.
package screener

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tokenradar/application/collector"
	"tokenradar/application/scoring"
	"tokenradar/domain"
	"tokenradar/infrastructure/metrics"
	"tokenradar/infrastructure/ratelimit"
	"tokenradar/infrastructure/snapshot"
)

// MarketSource is the upstream surface the screener needs; *birdeye.Client
// satisfies it.
type MarketSource interface {
	TokenList(ctx context.Context, offset, limit int) ([]domain.Token, int, error)
	TokenOverview(ctx context.Context, tok domain.Token) (domain.Token, error)
	TraderList(ctx context.Context, offset, limit int) ([]domain.Trader, int, error)
	TraderTrades(ctx context.Context, tr domain.Trader, limit int) (domain.Trader, error)
}

// Config tunes the screener's collection runs.
type Config struct {
	TargetCount      int
	BatchSize        int
	PaceInterval     time.Duration
	Enrich           bool
	TraderTradeLimit int
}

// Screener composes the collector, the scoring engine and a snapshot
// store.
type Screener struct {
	source MarketSource
	store  snapshot.Store
	engine *scoring.Engine
	cfg    Config

	mu         sync.Mutex
	refreshing map[string]*sync.Mutex
}

// New wires a screener.
func New(source MarketSource, store snapshot.Store, engine *scoring.Engine, cfg Config) *Screener {
	if cfg.TargetCount <= 0 {
		cfg.TargetCount = 200
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.TraderTradeLimit <= 0 {
		cfg.TraderTradeLimit = 25
	}
	return &Screener{
		source:     source,
		store:      store,
		engine:     engine,
		cfg:        cfg,
		refreshing: make(map[string]*sync.Mutex),
	}
}

// Tokens returns the scored token set, serving the cached snapshot unless
// it is absent, expired or force is set. Partial collections are scored
// and cached like complete ones; fewer records than the target is a valid
// outcome.
func (s *Screener) Tokens(ctx context.Context, force bool) ([]domain.ScoredToken, error) {
	key := string(domain.DatasetTokens)

	if !force {
		if snap, ok := s.store.LoadTokens(ctx, key); ok {
			metrics.SnapshotAgeSeconds.WithLabelValues(key).Set(time.Since(snap.CapturedAt).Seconds())
			return snap.Records, nil
		}
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Another refresh may have landed while we waited for the lock.
	if !force {
		if snap, ok := s.store.LoadTokens(ctx, key); ok {
			return snap.Records, nil
		}
	}

	res := collector.Run(ctx, collector.Config{
		Dataset:     key,
		TargetCount: s.cfg.TargetCount,
		BatchSize:   s.cfg.BatchSize,
		Pacer:       ratelimit.NewPacer(s.cfg.PaceInterval),
		Enrich:      s.cfg.Enrich,
	}, s.fetchTokenPage, s.source.TokenOverview)

	if len(res.Records) == 0 {
		// Nothing usable; surface the cause when there is one.
		return nil, res.Err
	}

	scored := s.engine.Score(res.Records, nil)

	snap := &snapshot.TokenSnapshot{
		CapturedAt: time.Now().UTC(),
		RunID:      res.RunID,
		Records:    scored,
	}
	if err := s.store.SaveTokens(ctx, key, snap); err != nil {
		log.Error().Str("key", key).Err(err).Msg("snapshot save failed, serving unsaved results")
	}
	metrics.SnapshotAgeSeconds.WithLabelValues(key).Set(0)

	return scored, nil
}

// Traders returns the trader set with trade histories, cached under the
// fast-moving expiry.
func (s *Screener) Traders(ctx context.Context, force bool) ([]domain.Trader, error) {
	key := string(domain.DatasetTraders)

	if !force {
		if snap, ok := s.store.LoadTraders(ctx, key); ok {
			metrics.SnapshotAgeSeconds.WithLabelValues(key).Set(time.Since(snap.CapturedAt).Seconds())
			return snap.Records, nil
		}
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if !force {
		if snap, ok := s.store.LoadTraders(ctx, key); ok {
			return snap.Records, nil
		}
	}

	res := collector.Run(ctx, collector.Config{
		Dataset:     key,
		TargetCount: s.cfg.TargetCount,
		BatchSize:   s.cfg.BatchSize,
		Pacer:       ratelimit.NewPacer(s.cfg.PaceInterval),
		Enrich:      s.cfg.Enrich,
	}, s.fetchTraderPage, s.enrichTrader)

	if len(res.Records) == 0 {
		return nil, res.Err
	}

	snap := &snapshot.TraderSnapshot{
		CapturedAt: time.Now().UTC(),
		RunID:      res.RunID,
		Records:    res.Records,
	}
	if err := s.store.SaveTraders(ctx, key, snap); err != nil {
		log.Error().Str("key", key).Err(err).Msg("snapshot save failed, serving unsaved results")
	}
	metrics.SnapshotAgeSeconds.WithLabelValues(key).Set(0)

	return res.Records, nil
}

func (s *Screener) fetchTokenPage(ctx context.Context, offset, limit int) (collector.Page[domain.Token], error) {
	items, total, err := s.source.TokenList(ctx, offset, limit)
	return collector.Page[domain.Token]{Items: items, Total: total}, err
}

func (s *Screener) fetchTraderPage(ctx context.Context, offset, limit int) (collector.Page[domain.Trader], error) {
	items, total, err := s.source.TraderList(ctx, offset, limit)
	return collector.Page[domain.Trader]{Items: items, Total: total}, err
}

func (s *Screener) enrichTrader(ctx context.Context, tr domain.Trader) (domain.Trader, error) {
	return s.source.TraderTrades(ctx, tr, s.cfg.TraderTradeLimit)
}

// keyLock returns the per-key refresh mutex, creating it on first use.
func (s *Screener) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.refreshing[key]
	if !ok {
		lock = &sync.Mutex{}
		s.refreshing[key] = lock
	}
	return lock
}

// SortTokens re-sorts scored records by a named field for display.
// Unknown fields fall back to performance. Descending by default mirrors
// the upstream sort keys.
func SortTokens(records []domain.ScoredToken, field string, ascending bool) {
	key := tokenSortKey(field)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := key(&records[i]), key(&records[j])
		if ascending {
			return a < b
		}
		return a > b
	})
}

func tokenSortKey(field string) func(*domain.ScoredToken) float64 {
	switch strings.ToLower(field) {
	case "volume", "v24husd":
		return func(t *domain.ScoredToken) float64 { return t.Volume24hUSD }
	case "liquidity":
		return func(t *domain.ScoredToken) float64 { return t.Liquidity }
	case "mc", "market_cap":
		return func(t *domain.ScoredToken) float64 { return t.MarketCap }
	case "change", "v24hchangepercent":
		return func(t *domain.ScoredToken) float64 { return t.Change24hPercent }
	case "vol_liq_ratio":
		return func(t *domain.ScoredToken) float64 { return t.VolumeLiquidityRatio }
	default:
		return func(t *domain.ScoredToken) float64 { return t.Performance }
	}
}
