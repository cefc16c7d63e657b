// Package domain holds the record types shared by the collector, the
// scoring engine and the snapshot stores.
package domain

// Token is one row of the upstream token list, optionally enriched with
// overview fields. Values are kept as received; sanitizing happens in the
// scoring engine.
type Token struct {
	Address          string  `json:"address" db:"address"`
	Symbol           string  `json:"symbol" db:"symbol"`
	Name             string  `json:"name" db:"name"`
	Price            float64 `json:"price" db:"price"`
	Volume24hUSD     float64 `json:"v24hUSD" db:"volume_24h_usd"`
	Change24hPercent float64 `json:"v24hChangePercent" db:"change_24h_percent"`
	Liquidity        float64 `json:"liquidity" db:"liquidity"`
	MarketCap        float64 `json:"mc" db:"market_cap"`

	// Overview enrichment; zero when the per-token detail fetch was skipped.
	HolderCount     int64 `json:"holder" db:"holder_count"`
	UniqueWallet24h int64 `json:"uniqueWallet24h" db:"unique_wallet_24h"`
}

// ScoredToken extends Token with the derived ratios, the composite
// performance score and the anomaly flags. Derived fields are pure
// functions of the batch the token was scored against; scores are only
// comparable within one batch.
type ScoredToken struct {
	Token

	VolumeLiquidityRatio float64 `json:"volume_liquidity_ratio" db:"vol_liq_ratio"`
	VolumeMarketCapRatio float64 `json:"volume_mc_ratio" db:"vol_mc_ratio"`
	LiquidityMCRatio     float64 `json:"liquidity_mc_ratio" db:"liq_mc_ratio"`

	Performance  float64 `json:"performance" db:"performance"`
	Rank         int     `json:"rank" db:"rank"`
	IsSuspicious bool    `json:"is_suspicious" db:"is_suspicious"`
	IsPump       bool    `json:"is_pump" db:"is_pump"`
}
