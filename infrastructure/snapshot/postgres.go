package snapshot

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"tokenradar/domain"
	"tokenradar/infrastructure/metrics"
)

// PostgresStore keeps snapshots in two normalized tables per dataset kind:
// a parent record table and a child trade table with an explicit foreign
// key on the trader address. Each save rewrites the key's rows in one
// transaction, which stands in for the file store's rename.
type PostgresStore struct {
	db      *sqlx.DB
	maxAges MaxAges

	now func() time.Time
}

// NewPostgresStore opens a connection pool against dsn.
func NewPostgresStore(dsn string, maxAges MaxAges) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	return &PostgresStore{db: db, maxAges: maxAges, now: time.Now}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS token_snapshots (
	dataset            TEXT        NOT NULL,
	captured_at        TIMESTAMPTZ NOT NULL,
	run_id             TEXT        NOT NULL,
	address            TEXT        NOT NULL,
	symbol             TEXT        NOT NULL,
	name               TEXT        NOT NULL DEFAULT '',
	price              DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_24h_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	change_24h_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	liquidity          DOUBLE PRECISION NOT NULL DEFAULT 0,
	market_cap         DOUBLE PRECISION NOT NULL DEFAULT 0,
	holder_count       BIGINT      NOT NULL DEFAULT 0,
	unique_wallet_24h  BIGINT      NOT NULL DEFAULT 0,
	vol_liq_ratio      DOUBLE PRECISION NOT NULL DEFAULT 0,
	vol_mc_ratio       DOUBLE PRECISION NOT NULL DEFAULT 0,
	liq_mc_ratio       DOUBLE PRECISION NOT NULL DEFAULT 0,
	performance        DOUBLE PRECISION NOT NULL DEFAULT 0,
	rank               INT         NOT NULL DEFAULT 0,
	is_suspicious      BOOLEAN     NOT NULL DEFAULT FALSE,
	is_pump            BOOLEAN     NOT NULL DEFAULT FALSE,
	PRIMARY KEY (dataset, address)
);

CREATE TABLE IF NOT EXISTS trader_snapshots (
	dataset     TEXT        NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	run_id      TEXT        NOT NULL,
	address     TEXT        NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_usd  DOUBLE PRECISION NOT NULL DEFAULT 0,
	trade_count BIGINT      NOT NULL DEFAULT 0,
	PRIMARY KEY (dataset, address)
);

CREATE TABLE IF NOT EXISTS trader_trades (
	dataset         TEXT   NOT NULL,
	trader_address  TEXT   NOT NULL,
	tx_hash         TEXT   NOT NULL,
	token_address   TEXT   NOT NULL DEFAULT '',
	token_symbol    TEXT   NOT NULL DEFAULT '',
	side            TEXT   NOT NULL DEFAULT '',
	amount_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	block_unix_time BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS trader_trades_fk ON trader_trades (dataset, trader_address);
`

// EnsureSchema creates the snapshot tables when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type tokenRow struct {
	CapturedAt time.Time `db:"captured_at"`
	RunID      string    `db:"run_id"`
	domain.ScoredToken
}

func (s *PostgresStore) SaveTokens(ctx context.Context, key string, snap *TokenSnapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM token_snapshots WHERE dataset = $1`, key); err != nil {
		return err
	}
	for _, rec := range snap.Records {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO token_snapshots (
				dataset, captured_at, run_id,
				address, symbol, name, price,
				volume_24h_usd, change_24h_percent, liquidity, market_cap,
				holder_count, unique_wallet_24h,
				vol_liq_ratio, vol_mc_ratio, liq_mc_ratio,
				performance, rank, is_suspicious, is_pump
			) VALUES (
				:dataset, :captured_at, :run_id,
				:address, :symbol, :name, :price,
				:volume_24h_usd, :change_24h_percent, :liquidity, :market_cap,
				:holder_count, :unique_wallet_24h,
				:vol_liq_ratio, :vol_mc_ratio, :liq_mc_ratio,
				:performance, :rank, :is_suspicious, :is_pump
			)`, map[string]interface{}{
			"dataset":            key,
			"captured_at":        snap.CapturedAt,
			"run_id":             snap.RunID,
			"address":            rec.Address,
			"symbol":             rec.Symbol,
			"name":               rec.Name,
			"price":              rec.Price,
			"volume_24h_usd":     rec.Volume24hUSD,
			"change_24h_percent": rec.Change24hPercent,
			"liquidity":          rec.Liquidity,
			"market_cap":         rec.MarketCap,
			"holder_count":       rec.HolderCount,
			"unique_wallet_24h":  rec.UniqueWallet24h,
			"vol_liq_ratio":      rec.VolumeLiquidityRatio,
			"vol_mc_ratio":       rec.VolumeMarketCapRatio,
			"liq_mc_ratio":       rec.LiquidityMCRatio,
			"performance":        rec.Performance,
			"rank":               rec.Rank,
			"is_suspicious":      rec.IsSuspicious,
			"is_pump":            rec.IsPump,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) LoadTokens(ctx context.Context, key string) (*TokenSnapshot, bool) {
	var rows []tokenRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT captured_at, run_id,
		       address, symbol, name, price,
		       volume_24h_usd, change_24h_percent, liquidity, market_cap,
		       holder_count, unique_wallet_24h,
		       vol_liq_ratio, vol_mc_ratio, liq_mc_ratio,
		       performance, rank, is_suspicious, is_pump
		FROM token_snapshots WHERE dataset = $1 ORDER BY rank`, key)
	if err != nil || len(rows) == 0 {
		if err != nil {
			log.Warn().Str("key", key).Err(err).Msg("postgres snapshot read failed, treating as absent")
		}
		metrics.CacheReads.WithLabelValues("postgres", key, "miss").Inc()
		return nil, false
	}

	snap := &TokenSnapshot{
		CapturedAt: rows[0].CapturedAt,
		RunID:      rows[0].RunID,
		Records:    make([]domain.ScoredToken, 0, len(rows)),
	}
	for _, row := range rows {
		snap.Records = append(snap.Records, row.ScoredToken)
	}

	if expired(snap.CapturedAt, s.maxAges.tokens(), s.now()) {
		metrics.CacheReads.WithLabelValues("postgres", key, "miss").Inc()
		return nil, false
	}
	metrics.CacheReads.WithLabelValues("postgres", key, "hit").Inc()
	return snap, true
}

func (s *PostgresStore) SaveTraders(ctx context.Context, key string, snap *TraderSnapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM trader_trades WHERE dataset = $1`, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trader_snapshots WHERE dataset = $1`, key); err != nil {
		return err
	}

	for _, tr := range snap.Records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trader_snapshots (dataset, captured_at, run_id, address, pnl, volume_usd, trade_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			key, snap.CapturedAt, snap.RunID, tr.Address, tr.PnL, tr.VolumeUSD, tr.TradeCount); err != nil {
			return err
		}
		for _, trade := range tr.Trades {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO trader_trades (dataset, trader_address, tx_hash, token_address, token_symbol, side, amount_usd, block_unix_time)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				key, tr.Address, trade.TxHash, trade.TokenAddress, trade.TokenSymbol,
				trade.Side, trade.AmountUSD, trade.BlockUnixTime); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) LoadTraders(ctx context.Context, key string) (*TraderSnapshot, bool) {
	type traderRow struct {
		CapturedAt time.Time `db:"captured_at"`
		RunID      string    `db:"run_id"`
		domain.Trader
	}
	var parents []traderRow
	err := s.db.SelectContext(ctx, &parents, `
		SELECT captured_at, run_id, address, pnl, volume_usd, trade_count
		FROM trader_snapshots WHERE dataset = $1 ORDER BY pnl DESC`, key)
	if err != nil || len(parents) == 0 {
		if err != nil {
			log.Warn().Str("key", key).Err(err).Msg("postgres snapshot read failed, treating as absent")
		}
		metrics.CacheReads.WithLabelValues("postgres", key, "miss").Inc()
		return nil, false
	}

	var trades []domain.Trade
	if err := s.db.SelectContext(ctx, &trades, `
		SELECT trader_address, tx_hash, token_address, token_symbol, side, amount_usd, block_unix_time
		FROM trader_trades WHERE dataset = $1`, key); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("trade rows unreadable, returning traders without history")
	}
	byTrader := make(map[string][]domain.Trade, len(parents))
	for _, trade := range trades {
		byTrader[trade.TraderAddress] = append(byTrader[trade.TraderAddress], trade)
	}

	snap := &TraderSnapshot{
		CapturedAt: parents[0].CapturedAt,
		RunID:      parents[0].RunID,
		Records:    make([]domain.Trader, 0, len(parents)),
	}
	for _, row := range parents {
		tr := row.Trader
		tr.Trades = byTrader[tr.Address]
		snap.Records = append(snap.Records, tr)
	}

	if expired(snap.CapturedAt, s.maxAges.traders(), s.now()) {
		metrics.CacheReads.WithLabelValues("postgres", key, "miss").Inc()
		return nil, false
	}
	metrics.CacheReads.WithLabelValues("postgres", key, "hit").Inc()
	return snap, true
}
