package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore(DefaultMaxAges)
	ctx := context.Background()

	saved := &TokenSnapshot{CapturedAt: time.Now(), RunID: "run-1", Records: scoredFixture()}
	require.NoError(t, store.SaveTokens(ctx, "tokens", saved))

	loaded, ok := store.LoadTokens(ctx, "tokens")
	require.True(t, ok)
	assert.Equal(t, saved, loaded)
}

func TestMemoryStore_MissAndExpiry(t *testing.T) {
	store := NewMemoryStore(MaxAges{Traders: time.Minute})
	ctx := context.Background()

	_, ok := store.LoadTraders(ctx, "traders")
	assert.False(t, ok)

	base := time.Now()
	require.NoError(t, store.SaveTraders(ctx, "traders", &TraderSnapshot{
		CapturedAt: base, RunID: "r", Records: traderFixture(),
	}))

	store.now = func() time.Time { return base.Add(59 * time.Second) }
	_, ok = store.LoadTraders(ctx, "traders")
	assert.True(t, ok)

	store.now = func() time.Time { return base.Add(61 * time.Second) }
	_, ok = store.LoadTraders(ctx, "traders")
	assert.False(t, ok)
}
