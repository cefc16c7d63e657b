package screener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenradar/application/scoring"
	"tokenradar/domain"
	"tokenradar/infrastructure/snapshot"
)

// fakeSource serves a fixed token universe and counts list calls.
type fakeSource struct {
	tokens    []domain.Token
	traders   []domain.Trader
	listCalls int32
	listErr   error
}

func (f *fakeSource) TokenList(_ context.Context, offset, limit int) ([]domain.Token, int, error) {
	atomic.AddInt32(&f.listCalls, 1)
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	end := offset + limit
	if end > len(f.tokens) {
		end = len(f.tokens)
	}
	if offset >= len(f.tokens) {
		return nil, len(f.tokens), nil
	}
	return f.tokens[offset:end], len(f.tokens), nil
}

func (f *fakeSource) TokenOverview(_ context.Context, tok domain.Token) (domain.Token, error) {
	tok.HolderCount = 1000
	return tok, nil
}

func (f *fakeSource) TraderList(_ context.Context, offset, limit int) ([]domain.Trader, int, error) {
	if offset >= len(f.traders) {
		return nil, len(f.traders), nil
	}
	end := offset + limit
	if end > len(f.traders) {
		end = len(f.traders)
	}
	return f.traders[offset:end], len(f.traders), nil
}

func (f *fakeSource) TraderTrades(_ context.Context, tr domain.Trader, _ int) (domain.Trader, error) {
	tr.Trades = []domain.Trade{{TraderAddress: tr.Address, TxHash: "sig"}}
	return tr, nil
}

func goodToken(addr, symbol string, volume float64) domain.Token {
	return domain.Token{
		Address: addr, Symbol: symbol,
		Volume24hUSD: volume, Liquidity: 50_000, MarketCap: 1_000_000,
		Change24hPercent: 10,
	}
}

func newTestScreener(src *fakeSource) (*Screener, *snapshot.MemoryStore) {
	store := snapshot.NewMemoryStore(snapshot.DefaultMaxAges)
	eng := scoring.NewEngine(scoring.WithFilter(nil))
	return New(src, store, eng, Config{TargetCount: 10, BatchSize: 5}), store
}

func TestTokens_CollectsScoresAndCaches(t *testing.T) {
	src := &fakeSource{tokens: []domain.Token{
		goodToken("a1", "AAA", 100_000),
		goodToken("a2", "BBB", 50_000),
	}}
	s, store := newTestScreener(src)

	scored, err := s.Tokens(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 1, scored[0].Rank)

	snap, ok := store.LoadTokens(context.Background(), "tokens")
	require.True(t, ok, "scored results are written through to the snapshot store")
	assert.Equal(t, scored, snap.Records)
	assert.NotEmpty(t, snap.RunID)
}

func TestTokens_ServesCacheWithoutUpstreamCalls(t *testing.T) {
	src := &fakeSource{tokens: []domain.Token{goodToken("a1", "AAA", 100_000)}}
	s, _ := newTestScreener(src)

	_, err := s.Tokens(context.Background(), false)
	require.NoError(t, err)
	first := atomic.LoadInt32(&src.listCalls)

	_, err = s.Tokens(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, first, atomic.LoadInt32(&src.listCalls),
		"a fresh snapshot must be served without hitting the upstream")
}

func TestTokens_ForceRefreshBypassesCache(t *testing.T) {
	src := &fakeSource{tokens: []domain.Token{goodToken("a1", "AAA", 100_000)}}
	s, _ := newTestScreener(src)

	_, err := s.Tokens(context.Background(), false)
	require.NoError(t, err)
	first := atomic.LoadInt32(&src.listCalls)

	_, err = s.Tokens(context.Background(), true)
	require.NoError(t, err)

	assert.Greater(t, atomic.LoadInt32(&src.listCalls), first)
}

func TestTokens_UpstreamFailureSurfacesWhenNothingCollected(t *testing.T) {
	src := &fakeSource{listErr: errors.New("upstream down")}
	s, _ := newTestScreener(src)

	_, err := s.Tokens(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestTokens_ConcurrentReadersShareOneRefresh(t *testing.T) {
	src := &fakeSource{tokens: []domain.Token{goodToken("a1", "AAA", 100_000)}}
	s, _ := newTestScreener(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Tokens(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// One page covers the universe: exactly one collection run should have
	// happened regardless of reader count.
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.listCalls),
		"the refresh guard must prevent redundant concurrent collections")
}

func TestTraders_RoundTripWithTradeHistory(t *testing.T) {
	src := &fakeSource{traders: []domain.Trader{
		{Address: "Trader1", PnL: 100},
		{Address: "Trader2", PnL: -5},
	}}
	store := snapshot.NewMemoryStore(snapshot.DefaultMaxAges)
	eng := scoring.NewEngine()
	s := New(src, store, eng, Config{TargetCount: 10, BatchSize: 5, Enrich: true})

	traders, err := s.Traders(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, traders, 2)
	require.Len(t, traders[0].Trades, 1, "enrichment attaches trade history")
	assert.Equal(t, "Trader1", traders[0].Trades[0].TraderAddress)

	snap, ok := store.LoadTraders(context.Background(), "traders")
	require.True(t, ok)
	assert.Equal(t, traders, snap.Records)
}

func TestSortTokens_ByFieldAndOrder(t *testing.T) {
	records := []domain.ScoredToken{
		{Token: domain.Token{Address: "a", Volume24hUSD: 10}, Performance: 0.9},
		{Token: domain.Token{Address: "b", Volume24hUSD: 30}, Performance: 0.1},
		{Token: domain.Token{Address: "c", Volume24hUSD: 20}, Performance: 0.5},
	}

	SortTokens(records, "volume", false)
	assert.Equal(t, "b", records[0].Address)

	SortTokens(records, "volume", true)
	assert.Equal(t, "a", records[0].Address)

	SortTokens(records, "anything-else", false)
	assert.Equal(t, "a", records[0].Address, "unknown fields sort by performance")
}

func TestTokens_ExpiredSnapshotTriggersRefresh(t *testing.T) {
	src := &fakeSource{tokens: []domain.Token{goodToken("a1", "AAA", 100_000)}}
	store := snapshot.NewMemoryStore(snapshot.MaxAges{Tokens: time.Nanosecond})
	eng := scoring.NewEngine(scoring.WithFilter(nil))
	s := New(src, store, eng, Config{TargetCount: 10, BatchSize: 5})

	_, err := s.Tokens(context.Background(), false)
	require.NoError(t, err)
	first := atomic.LoadInt32(&src.listCalls)

	time.Sleep(time.Millisecond)
	_, err = s.Tokens(context.Background(), false)
	require.NoError(t, err)

	assert.Greater(t, atomic.LoadInt32(&src.listCalls), first,
		"an expired snapshot reads as absent and falls through to collection")
}
