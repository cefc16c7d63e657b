package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"tokenradar/infrastructure/metrics"
)

// RedisStore is the hot-path store for fast-moving datasets; entries carry
// both a server-side TTL and the read-time expiry check, so a snapshot
// never outlives its max-age even on a lagging server clock.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
	maxAges   MaxAges

	now func() time.Time
}

// NewRedisStore creates a store on an existing Redis client.
func NewRedisStore(client redis.Cmdable, maxAges MaxAges) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: "tokenradar:snapshot:",
		maxAges:   maxAges,
		now:       time.Now,
	}
}

// NewRedisClient dials a Redis server with the pool settings the pipeline
// needs.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func (s *RedisStore) LoadTokens(ctx context.Context, key string) (*TokenSnapshot, bool) {
	var snap TokenSnapshot
	if !s.load(ctx, key, &snap) || expired(snap.CapturedAt, s.maxAges.tokens(), s.now()) {
		metrics.CacheReads.WithLabelValues("redis", key, "miss").Inc()
		return nil, false
	}
	metrics.CacheReads.WithLabelValues("redis", key, "hit").Inc()
	return &snap, true
}

func (s *RedisStore) SaveTokens(ctx context.Context, key string, snap *TokenSnapshot) error {
	return s.save(ctx, key, snap, s.maxAges.tokens())
}

func (s *RedisStore) LoadTraders(ctx context.Context, key string) (*TraderSnapshot, bool) {
	var snap TraderSnapshot
	if !s.load(ctx, key, &snap) || expired(snap.CapturedAt, s.maxAges.traders(), s.now()) {
		metrics.CacheReads.WithLabelValues("redis", key, "miss").Inc()
		return nil, false
	}
	metrics.CacheReads.WithLabelValues("redis", key, "hit").Inc()
	return &snap, true
}

func (s *RedisStore) SaveTraders(ctx context.Context, key string, snap *TraderSnapshot) error {
	return s.save(ctx, key, snap, s.maxAges.traders())
}

// load reads and decodes one snapshot value; any Redis or decode error
// degrades to a miss.
func (s *RedisStore) load(ctx context.Context, key string, out interface{}) bool {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Str("key", key).Err(err).Msg("redis snapshot read failed, treating as absent")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("redis snapshot corrupt, treating as absent")
		return false
	}
	return true
}

// save SETs the whole snapshot as one value, so readers see either the
// old or the new generation, never a mix.
func (s *RedisStore) save(ctx context.Context, key string, snap interface{}, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyPrefix+key, data, ttl).Err()
}
