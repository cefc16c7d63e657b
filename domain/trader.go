package domain

// Trader is one row of the upstream gainers/losers list. Trades is filled
// by the per-trader enrichment fetch and persisted as a child table keyed
// by the trader address.
type Trader struct {
	Address    string  `json:"address" db:"address"`
	PnL        float64 `json:"pnl" db:"pnl"`
	VolumeUSD  float64 `json:"volume" db:"volume_usd"`
	TradeCount int64   `json:"trade_count" db:"trade_count"`

	Trades []Trade `json:"trades,omitempty" db:"-"`
}

// Trade is a single historical trade belonging to a Trader.
type Trade struct {
	TraderAddress string  `json:"trader_address" db:"trader_address"`
	TxHash        string  `json:"tx_hash" db:"tx_hash"`
	TokenAddress  string  `json:"token_address" db:"token_address"`
	TokenSymbol   string  `json:"token_symbol" db:"token_symbol"`
	Side          string  `json:"side" db:"side"`
	AmountUSD     float64 `json:"amount_usd" db:"amount_usd"`
	BlockUnixTime int64   `json:"block_unix_time" db:"block_unix_time"`
}

// Dataset names one logical snapshot key.
type Dataset string

const (
	DatasetTokens  Dataset = "tokens"
	DatasetTraders Dataset = "traders"
)
