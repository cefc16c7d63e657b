package snapshot

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"tokenradar/domain"
	"tokenradar/infrastructure/metrics"
)

// FileStore persists snapshots as flat CSV tables under a directory, one
// parent file per key plus a linked trades file for trader datasets. Saves
// go through a temp file and rename so readers never see a partial write.
type FileStore struct {
	dir     string
	maxAges MaxAges

	now func() time.Time
}

// NewFileStore creates a CSV-backed store rooted at dir.
func NewFileStore(dir string, maxAges MaxAges) *FileStore {
	return &FileStore{dir: dir, maxAges: maxAges, now: time.Now}
}

var tokenHeader = []string{
	"captured_at", "run_id",
	"address", "symbol", "name", "price",
	"volume_24h_usd", "change_24h_percent", "liquidity", "market_cap",
	"holder_count", "unique_wallet_24h",
	"vol_liq_ratio", "vol_mc_ratio", "liq_mc_ratio",
	"performance", "rank", "is_suspicious", "is_pump",
}

var traderHeader = []string{
	"captured_at", "run_id",
	"address", "pnl", "volume_usd", "trade_count",
}

var tradeHeader = []string{
	"trader_address", "tx_hash", "token_address", "token_symbol",
	"side", "amount_usd", "block_unix_time",
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".csv")
}

func (s *FileStore) childPath(key string) string {
	return filepath.Join(s.dir, key+"_trades.csv")
}

// SaveTokens writes one row per scored token, every row stamped with the
// capture timestamp.
func (s *FileStore) SaveTokens(_ context.Context, key string, snap *TokenSnapshot) error {
	rows := make([][]string, 0, len(snap.Records))
	capturedAt := snap.CapturedAt.UTC().Format(time.RFC3339Nano)
	for _, rec := range snap.Records {
		rows = append(rows, []string{
			capturedAt, snap.RunID,
			rec.Address, rec.Symbol, rec.Name, formatFloat(rec.Price),
			formatFloat(rec.Volume24hUSD), formatFloat(rec.Change24hPercent),
			formatFloat(rec.Liquidity), formatFloat(rec.MarketCap),
			strconv.FormatInt(rec.HolderCount, 10), strconv.FormatInt(rec.UniqueWallet24h, 10),
			formatFloat(rec.VolumeLiquidityRatio), formatFloat(rec.VolumeMarketCapRatio),
			formatFloat(rec.LiquidityMCRatio),
			formatFloat(rec.Performance), strconv.Itoa(rec.Rank),
			strconv.FormatBool(rec.IsSuspicious), strconv.FormatBool(rec.IsPump),
		})
	}
	return writeCSVAtomic(s.path(key), tokenHeader, rows)
}

// LoadTokens reads the snapshot back; anything unreadable or expired is
// reported as absent, never as an error.
func (s *FileStore) LoadTokens(_ context.Context, key string) (*TokenSnapshot, bool) {
	rows, ok := readCSV(s.path(key), len(tokenHeader))
	if !ok {
		metrics.CacheReads.WithLabelValues("file", key, "miss").Inc()
		return nil, false
	}

	snap := &TokenSnapshot{Records: make([]domain.ScoredToken, 0, len(rows))}
	for _, row := range rows {
		capturedAt, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			log.Warn().Str("key", key).Str("captured_at", row[0]).
				Msg("snapshot has malformed timestamp, treating as absent")
			metrics.CacheReads.WithLabelValues("file", key, "miss").Inc()
			return nil, false
		}
		snap.CapturedAt = capturedAt
		snap.RunID = row[1]

		rank, _ := strconv.Atoi(row[16])
		snap.Records = append(snap.Records, domain.ScoredToken{
			Token: domain.Token{
				Address:          row[2],
				Symbol:           row[3],
				Name:             row[4],
				Price:            parseFloat(row[5]),
				Volume24hUSD:     parseFloat(row[6]),
				Change24hPercent: parseFloat(row[7]),
				Liquidity:        parseFloat(row[8]),
				MarketCap:        parseFloat(row[9]),
				HolderCount:      parseInt(row[10]),
				UniqueWallet24h:  parseInt(row[11]),
			},
			VolumeLiquidityRatio: parseFloat(row[12]),
			VolumeMarketCapRatio: parseFloat(row[13]),
			LiquidityMCRatio:     parseFloat(row[14]),
			Performance:          parseFloat(row[15]),
			Rank:                 rank,
			IsSuspicious:         row[17] == "true",
			IsPump:               row[18] == "true",
		})
	}

	if expired(snap.CapturedAt, s.maxAges.tokens(), s.now()) {
		metrics.CacheReads.WithLabelValues("file", key, "miss").Inc()
		return nil, false
	}
	metrics.CacheReads.WithLabelValues("file", key, "hit").Inc()
	return snap, true
}

// SaveTraders writes two linked tables: the parent trader rows and a child
// trades table keyed by trader address. Both are rewritten together.
func (s *FileStore) SaveTraders(_ context.Context, key string, snap *TraderSnapshot) error {
	capturedAt := snap.CapturedAt.UTC().Format(time.RFC3339Nano)

	parents := make([][]string, 0, len(snap.Records))
	var children [][]string
	for _, tr := range snap.Records {
		parents = append(parents, []string{
			capturedAt, snap.RunID,
			tr.Address, formatFloat(tr.PnL), formatFloat(tr.VolumeUSD),
			strconv.FormatInt(tr.TradeCount, 10),
		})
		for _, trade := range tr.Trades {
			children = append(children, []string{
				tr.Address, trade.TxHash, trade.TokenAddress, trade.TokenSymbol,
				trade.Side, formatFloat(trade.AmountUSD),
				strconv.FormatInt(trade.BlockUnixTime, 10),
			})
		}
	}

	if err := writeCSVAtomic(s.path(key), traderHeader, parents); err != nil {
		return err
	}
	return writeCSVAtomic(s.childPath(key), tradeHeader, children)
}

// LoadTraders reconstructs the nested trade lists by joining the child
// table on the trader address.
func (s *FileStore) LoadTraders(_ context.Context, key string) (*TraderSnapshot, bool) {
	parents, ok := readCSV(s.path(key), len(traderHeader))
	if !ok {
		metrics.CacheReads.WithLabelValues("file", key, "miss").Inc()
		return nil, false
	}

	tradesByTrader := make(map[string][]domain.Trade)
	if children, ok := readCSV(s.childPath(key), len(tradeHeader)); ok {
		for _, row := range children {
			tradesByTrader[row[0]] = append(tradesByTrader[row[0]], domain.Trade{
				TraderAddress: row[0],
				TxHash:        row[1],
				TokenAddress:  row[2],
				TokenSymbol:   row[3],
				Side:          row[4],
				AmountUSD:     parseFloat(row[5]),
				BlockUnixTime: parseInt(row[6]),
			})
		}
	}

	snap := &TraderSnapshot{Records: make([]domain.Trader, 0, len(parents))}
	for _, row := range parents {
		capturedAt, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			metrics.CacheReads.WithLabelValues("file", key, "miss").Inc()
			return nil, false
		}
		snap.CapturedAt = capturedAt
		snap.RunID = row[1]
		snap.Records = append(snap.Records, domain.Trader{
			Address:    row[2],
			PnL:        parseFloat(row[3]),
			VolumeUSD:  parseFloat(row[4]),
			TradeCount: parseInt(row[5]),
			Trades:     tradesByTrader[row[2]],
		})
	}

	if expired(snap.CapturedAt, s.maxAges.traders(), s.now()) {
		metrics.CacheReads.WithLabelValues("file", key, "miss").Inc()
		return nil, false
	}
	metrics.CacheReads.WithLabelValues("file", key, "hit").Inc()
	return snap, true
}

// writeCSVAtomic writes header+rows to a temp file and renames it over the
// target, so readers only ever see complete files.
func writeCSVAtomic(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// readCSV returns the data rows of a CSV file, or false when the file is
// missing, unreadable or does not match the expected width.
func readCSV(path string, wantFields int) ([][]string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = wantFields
	rows, err := r.ReadAll()
	if err != nil || len(rows) < 1 {
		return nil, false
	}
	return rows[1:], true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
