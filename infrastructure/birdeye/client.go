// Package birdeye implements the upstream market-data client. Every call
// passes through the shared request budget and the retrying caller; a
// well-formed response with success=false surfaces as *APIError and is
// never retried.
package birdeye

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"tokenradar/domain"
	"tokenradar/infrastructure/httpx"
	"tokenradar/infrastructure/metrics"
	"tokenradar/infrastructure/ratelimit"
)

// DefaultBaseURL is the public Birdeye API root.
const DefaultBaseURL = "https://public-api.birdeye.so"

// APIError is an application-level failure: the upstream answered, but
// declined the request.
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("birdeye %s: %s", e.Endpoint, e.Message)
}

// Config holds client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	Budget *ratelimit.Window
	Caller *httpx.Caller
}

// Client talks to the Birdeye HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	budget  *ratelimit.Window
	caller  *httpx.Caller
}

// NewClient creates a client from cfg, filling defaults for anything unset.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Budget == nil {
		cfg.Budget = ratelimit.NewWindow(60, time.Minute)
	}
	if cfg.Caller == nil {
		cfg.Caller = httpx.New(httpx.Config{})
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		budget:  cfg.Budget,
		caller:  cfg.Caller,
	}
}

// TokenList fetches one page of the token list sorted by 24h USD volume
// descending. Returns the page plus the upstream's total row count.
func (c *Client) TokenList(ctx context.Context, offset, limit int) ([]domain.Token, int, error) {
	params := url.Values{}
	params.Set("sort_by", "v24hUSD")
	params.Set("sort_type", "desc")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))

	var out tokenListResponse
	if err := c.get(ctx, "tokenlist", "/defi/tokenlist", params, &out); err != nil {
		return nil, 0, err
	}

	tokens := make([]domain.Token, 0, len(out.Data.Tokens))
	for _, row := range out.Data.Tokens {
		tokens = append(tokens, row.toDomain())
	}

	log.Debug().Int("offset", offset).Int("count", len(tokens)).
		Int("total", int(out.Data.Total)).Msg("token list page fetched")

	return tokens, int(out.Data.Total), nil
}

// TokenOverview fetches per-token detail and merges the enrichment fields
// into tok.
func (c *Client) TokenOverview(ctx context.Context, tok domain.Token) (domain.Token, error) {
	params := url.Values{}
	params.Set("address", tok.Address)

	var out tokenOverviewResponse
	if err := c.get(ctx, "token_overview", "/defi/token_overview", params, &out); err != nil {
		return tok, err
	}

	tok.HolderCount = int64(out.Data.HolderCount)
	tok.UniqueWallet24h = int64(out.Data.UniqueWallet24h)
	return tok, nil
}

// TraderList fetches one page of the top-trader gainers/losers list.
func (c *Client) TraderList(ctx context.Context, offset, limit int) ([]domain.Trader, int, error) {
	params := url.Values{}
	params.Set("type", "1W")
	params.Set("sort_by", "PnL")
	params.Set("sort_type", "desc")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))

	var out traderListResponse
	if err := c.get(ctx, "trader_list", "/trader/gainers-losers", params, &out); err != nil {
		return nil, 0, err
	}

	traders := make([]domain.Trader, 0, len(out.Data.Items))
	for _, row := range out.Data.Items {
		traders = append(traders, row.toDomain())
	}
	return traders, int(out.Data.Total), nil
}

// TraderTrades fetches a trader's recent trade history and attaches it.
func (c *Client) TraderTrades(ctx context.Context, tr domain.Trader, limit int) (domain.Trader, error) {
	params := url.Values{}
	params.Set("address", tr.Address)
	params.Set("limit", strconv.Itoa(limit))

	var out traderTxsResponse
	if err := c.get(ctx, "trader_txs", "/trader/txs/seek_by_time", params, &out); err != nil {
		return tr, err
	}

	trades := make([]domain.Trade, 0, len(out.Data.Items))
	for _, row := range out.Data.Items {
		trades = append(trades, domain.Trade{
			TraderAddress: tr.Address,
			TxHash:        row.TxHash,
			TokenAddress:  row.TokenAddress,
			TokenSymbol:   row.TokenSymbol,
			Side:          row.Side,
			AmountUSD:     float64(row.AmountUSD),
			BlockUnixTime: int64(row.BlockUnixTime),
		})
	}
	tr.Trades = trades
	return tr, nil
}

// Probe performs a lightweight health check against the token list.
func (c *Client) Probe(ctx context.Context) error {
	_, _, err := c.TokenList(ctx, 0, 1)
	return err
}

// get runs one budgeted, retried GET and decodes the envelope into out,
// which must embed envelope via a Success field.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	waitStart := time.Now()
	if err := c.budget.Acquire(ctx); err != nil {
		return err
	}
	if waited := time.Since(waitStart); waited > 10*time.Millisecond {
		metrics.RateLimitWaitSeconds.Add(waited.Seconds())
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	resp, err := c.caller.Do(ctx, op, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-KEY", c.apiKey)
		}
		return c.http.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}

	if env, ok := out.(interface{ ok() (bool, string) }); ok {
		if success, msg := env.ok(); !success {
			return &APIError{Endpoint: op, Message: msg}
		}
	}
	return nil
}

func (e envelope) ok() (bool, string) {
	msg := e.Message
	if msg == "" {
		msg = "success=false"
	}
	return e.Success, msg
}
