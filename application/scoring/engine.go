// Package scoring turns raw token batches into ranked, scored records.
// Normalization is batch-relative min-max, so scores are only comparable
// within the batch they were computed against. Scoring is a pure function
// of the batch plus the weights: the same input always yields the same
// output.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"tokenradar/domain"
	"tokenradar/infrastructure/metrics"
)

// Metric keys used in the weight table.
const (
	MetricPriceChange   = "price_change"
	MetricVolume        = "volume"
	MetricLiquidity     = "liquidity"
	MetricVolLiqRatio   = "vol_liq_ratio"
	MetricVolMCRatio    = "vol_mc_ratio"
	MetricLiqMCRatio    = "liq_mc_ratio"
	MetricHolderCount   = "holder_count"
	MetricUniqueWallets = "unique_wallets"
)

// Weights maps metric keys to their contribution. Values need not sum to
// 1; unknown keys are ignored.
type Weights map[string]float64

// DefaultWeights mirrors the production weight table. The holder and
// unique-wallet metrics only participate when the batch carries
// enrichment data.
var DefaultWeights = Weights{
	MetricPriceChange:   0.15,
	MetricVolume:        0.15,
	MetricLiquidity:     0.15,
	MetricVolLiqRatio:   0.20,
	MetricVolMCRatio:    0.20,
	MetricLiqMCRatio:    0.15,
	MetricHolderCount:   0.05,
	MetricUniqueWallets: 0.05,
}

// Merge overlays caller-provided weights onto defaults with defined
// precedence: the override always wins, untouched defaults remain.
func Merge(defaults, overrides Weights) Weights {
	merged := make(Weights, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Thresholds configure the suspicious-activity detector. They are
// configuration, not constants: the product has shipped several variants.
type Thresholds struct {
	MaxVolumeLiquidityRatio float64 `yaml:"max_volume_liquidity_ratio"`
	MaxVolumeMarketCapRatio float64 `yaml:"max_volume_mc_ratio"`
	MinLiquidityMCRatio     float64 `yaml:"min_liquidity_mc_ratio"`
	PumpChangePercent       float64 `yaml:"pump_change_percent"`
	DumpChangePercent       float64 `yaml:"dump_change_percent"`
}

// DefaultThresholds is the moderate variant.
var DefaultThresholds = Thresholds{
	MaxVolumeLiquidityRatio: 5,
	MaxVolumeMarketCapRatio: 3,
	MinLiquidityMCRatio:     0.05,
	PumpChangePercent:       100,
	DumpChangePercent:       -50,
}

// Filter drops records before scoring. A nil filter disables the stage.
type Filter struct {
	ExcludedSymbols []string `yaml:"excluded_symbols"`
	MinMarketCap    float64  `yaml:"min_market_cap"`
	MaxMarketCap    float64  `yaml:"max_market_cap"`
	MinLiquidity    float64  `yaml:"min_liquidity"`
	MinVolume24h    float64  `yaml:"min_volume_24h"`
}

// DefaultFilter excludes wrapped/staked/stable assets and thin markets.
var DefaultFilter = Filter{
	ExcludedSymbols: []string{
		"USDT", "USDC", "PYUSD",
		"mSOL", "WBTC", "cbBTC", "SOL", "BNSOL", "bSOL", "LP-SOLAYER", "hubSOL",
		"JLP",
		"JitoSOL", "JupSOL",
	},
	MinMarketCap: 150_000,
	MaxMarketCap: 75_000_000,
	MinLiquidity: 10_000,
	MinVolume24h: 1_000,
}

// Engine scores token batches.
type Engine struct {
	weights    Weights
	thresholds Thresholds
	filter     *Filter
}

// Option customizes an Engine.
type Option func(*Engine)

// WithWeights replaces the default weight table.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		if len(w) > 0 {
			e.weights = w
		}
	}
}

// WithThresholds replaces the default anomaly thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithFilter sets the pre-score filter; nil disables filtering.
func WithFilter(f *Filter) Option {
	return func(e *Engine) { e.filter = f }
}

// NewEngine creates an engine with the default weights, thresholds and
// filter, then applies opts.
func NewEngine(opts ...Option) *Engine {
	f := DefaultFilter
	e := &Engine{
		weights:    DefaultWeights,
		thresholds: DefaultThresholds,
		filter:     &f,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score filters, normalizes and scores a batch. Caller-provided overrides
// are merged over the engine's weights with caller precedence. The result
// is sorted by performance descending (address ascending on ties) with
// ranks assigned from 1.
func (e *Engine) Score(records []domain.Token, overrides Weights) []domain.ScoredToken {
	weights := e.weights
	if len(overrides) > 0 {
		weights = Merge(e.weights, overrides)
	}

	kept := e.applyFilter(records)
	if len(kept) == 0 {
		return []domain.ScoredToken{}
	}

	scored := make([]domain.ScoredToken, len(kept))
	for i, tok := range kept {
		scored[i] = deriveRatios(sanitize(tok))
	}

	hasHolderData := false
	for i := range scored {
		if scored[i].HolderCount > 0 || scored[i].UniqueWallet24h > 0 {
			hasHolderData = true
			break
		}
	}

	columns := map[string][]float64{
		MetricPriceChange: column(scored, func(t *domain.ScoredToken) float64 { return t.Change24hPercent }),
		MetricVolume:      column(scored, func(t *domain.ScoredToken) float64 { return t.Volume24hUSD }),
		MetricLiquidity:   column(scored, func(t *domain.ScoredToken) float64 { return t.Liquidity }),
		MetricVolLiqRatio: column(scored, func(t *domain.ScoredToken) float64 { return t.VolumeLiquidityRatio }),
		MetricVolMCRatio:  column(scored, func(t *domain.ScoredToken) float64 { return t.VolumeMarketCapRatio }),
		MetricLiqMCRatio:  column(scored, func(t *domain.ScoredToken) float64 { return t.LiquidityMCRatio }),
	}
	if hasHolderData {
		columns[MetricHolderCount] = column(scored, func(t *domain.ScoredToken) float64 { return float64(t.HolderCount) })
		columns[MetricUniqueWallets] = column(scored, func(t *domain.ScoredToken) float64 { return float64(t.UniqueWallet24h) })
	}

	for name, values := range columns {
		columns[name] = minMaxNormalize(values)
	}

	for i := range scored {
		sum := 0.0
		for name, values := range columns {
			weight, ok := weights[name]
			if !ok {
				continue
			}
			sum += values[i] * weight
		}
		scored[i].Performance = round3(sum)
		e.flagAnomalies(&scored[i])
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Performance != scored[j].Performance {
			return scored[i].Performance > scored[j].Performance
		}
		return scored[i].Address < scored[j].Address
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}

	e.logSummary(len(records), scored)
	metrics.RecordsScored.Add(float64(len(scored)))

	return scored
}

// applyFilter applies the pure filter predicates; order does not affect
// the final set.
func (e *Engine) applyFilter(records []domain.Token) []domain.Token {
	if e.filter == nil {
		out := make([]domain.Token, len(records))
		copy(out, records)
		return out
	}

	excluded := make(map[string]struct{}, len(e.filter.ExcludedSymbols))
	for _, sym := range e.filter.ExcludedSymbols {
		excluded[strings.ToUpper(sym)] = struct{}{}
	}

	kept := make([]domain.Token, 0, len(records))
	for _, tok := range records {
		if _, drop := excluded[strings.ToUpper(tok.Symbol)]; drop {
			continue
		}
		if tok.MarketCap < e.filter.MinMarketCap || tok.MarketCap > e.filter.MaxMarketCap {
			continue
		}
		if tok.Liquidity <= e.filter.MinLiquidity || tok.Volume24hUSD <= e.filter.MinVolume24h {
			continue
		}
		kept = append(kept, tok)
	}
	return kept
}

// flagAnomalies sets the independent boolean tags; they never feed back
// into the score.
func (e *Engine) flagAnomalies(tok *domain.ScoredToken) {
	t := e.thresholds
	tok.IsSuspicious = tok.VolumeLiquidityRatio > t.MaxVolumeLiquidityRatio ||
		tok.VolumeMarketCapRatio > t.MaxVolumeMarketCapRatio ||
		tok.LiquidityMCRatio < t.MinLiquidityMCRatio ||
		tok.Change24hPercent > t.PumpChangePercent ||
		tok.Change24hPercent < t.DumpChangePercent
	tok.IsPump = strings.HasSuffix(strings.ToLower(tok.Address), "pump")
}

func (e *Engine) logSummary(initial int, scored []domain.ScoredToken) {
	suspicious, pumps := 0, 0
	var mcSum, volSum, liqSum float64
	for i := range scored {
		if scored[i].IsSuspicious {
			suspicious++
		}
		if scored[i].IsPump {
			pumps++
		}
		mcSum += scored[i].MarketCap
		volSum += scored[i].Volume24hUSD
		liqSum += scored[i].Liquidity
	}
	n := float64(len(scored))
	log.Info().
		Int("initial", initial).
		Int("scored", len(scored)).
		Int("suspicious", suspicious).
		Int("pump", pumps).
		Float64("mean_market_cap", round3(mcSum/n)).
		Float64("mean_volume_24h", round3(volSum/n)).
		Float64("mean_liquidity", round3(liqSum/n)).
		Msg("batch scored")
}

// sanitize coerces NaN/Inf fields to 0 so one bad record never poisons
// the batch statistics.
func sanitize(tok domain.Token) domain.Token {
	tok.Price = finite(tok.Price)
	tok.Volume24hUSD = finite(tok.Volume24hUSD)
	tok.Change24hPercent = finite(tok.Change24hPercent)
	tok.Liquidity = finite(tok.Liquidity)
	tok.MarketCap = finite(tok.MarketCap)
	return tok
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// deriveRatios computes the three core ratios with zero denominators
// yielding 0, never infinity.
func deriveRatios(tok domain.Token) domain.ScoredToken {
	return domain.ScoredToken{
		Token:                tok,
		VolumeLiquidityRatio: round3(safeDiv(tok.Volume24hUSD, tok.Liquidity)),
		VolumeMarketCapRatio: round3(safeDiv(tok.Volume24hUSD, tok.MarketCap)),
		LiquidityMCRatio:     round3(safeDiv(tok.Liquidity, tok.MarketCap)),
	}
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// minMaxNormalize scales values into [0,1] against the batch min/max.
// Degenerate batches (max == min) pass through unchanged.
func minMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}

func column(scored []domain.ScoredToken, get func(*domain.ScoredToken) float64) []float64 {
	out := make([]float64, len(scored))
	for i := range scored {
		out[i] = get(&scored[i])
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
