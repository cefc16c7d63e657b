package birdeye

import (
	"bytes"
	"strconv"

	"tokenradar/domain"
)

// envelope is the generic Birdeye response wrapper. Application-level
// failures arrive as well-formed bodies with Success=false.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// flexFloat decodes permissively: numbers, numeric strings, null and
// malformed values all land as a float, defaulting to 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexInt mirrors flexFloat for integer fields such as holder counts.
type flexInt int64

func (i *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*i = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*i = 0
		return nil
	}
	*i = flexInt(v)
	return nil
}

type tokenRow struct {
	Address          string    `json:"address"`
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name"`
	Price            flexFloat `json:"price"`
	Volume24hUSD     flexFloat `json:"v24hUSD"`
	Change24hPercent flexFloat `json:"v24hChangePercent"`
	Liquidity        flexFloat `json:"liquidity"`
	MarketCap        flexFloat `json:"mc"`
}

func (r tokenRow) toDomain() domain.Token {
	return domain.Token{
		Address:          r.Address,
		Symbol:           r.Symbol,
		Name:             r.Name,
		Price:            float64(r.Price),
		Volume24hUSD:     float64(r.Volume24hUSD),
		Change24hPercent: float64(r.Change24hPercent),
		Liquidity:        float64(r.Liquidity),
		MarketCap:        float64(r.MarketCap),
	}
}

type tokenListResponse struct {
	envelope
	Data struct {
		UpdateUnixTime int64      `json:"updateUnixTime"`
		Total          flexInt    `json:"total"`
		Tokens         []tokenRow `json:"tokens"`
	} `json:"data"`
}

type tokenOverviewResponse struct {
	envelope
	Data struct {
		Address         string  `json:"address"`
		HolderCount     flexInt `json:"holder"`
		UniqueWallet24h flexInt `json:"uniqueWallet24h"`
	} `json:"data"`
}

type traderRow struct {
	Address    string    `json:"address"`
	PnL        flexFloat `json:"pnl"`
	VolumeUSD  flexFloat `json:"volume"`
	TradeCount flexInt   `json:"trade_count"`
}

func (r traderRow) toDomain() domain.Trader {
	return domain.Trader{
		Address:    r.Address,
		PnL:        float64(r.PnL),
		VolumeUSD:  float64(r.VolumeUSD),
		TradeCount: int64(r.TradeCount),
	}
}

type traderListResponse struct {
	envelope
	Data struct {
		Total flexInt     `json:"total"`
		Items []traderRow `json:"items"`
	} `json:"data"`
}

type tradeRow struct {
	TxHash        string    `json:"tx_hash"`
	TokenAddress  string    `json:"token_address"`
	TokenSymbol   string    `json:"token_symbol"`
	Side          string    `json:"side"`
	AmountUSD     flexFloat `json:"volume_usd"`
	BlockUnixTime flexInt   `json:"block_unix_time"`
}

type traderTxsResponse struct {
	envelope
	Data struct {
		Items []tradeRow `json:"items"`
	} `json:"data"`
}
