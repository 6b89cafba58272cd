// Package benchmark quotes the market index that fund performance is
// compared against, via the Yahoo Finance v8 chart endpoint.
package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSymbol is the index quoted when none is configured.
const DefaultSymbol = "^NSEBANK"

// DefaultBaseURL is the Yahoo chart API root.
const DefaultBaseURL = "https://query2.finance.yahoo.com"

// ErrNoQuote is returned when the upstream response carries no usable price.
var ErrNoQuote = errors.New("benchmark: no quote available")

// Quote is the latest known price of the benchmark index.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// Client fetches index quotes, caching the last result briefly so a burst
// of dashboard requests does not hammer the upstream.
type Client struct {
	httpc  *http.Client
	base   string
	symbol string
	ttl    time.Duration

	mu      sync.RWMutex
	cached  Quote
	fetched time.Time
}

// NewClient builds a quote client for the given symbol. Empty arguments
// take the defaults.
func NewClient(baseURL, symbol string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return &Client{
		httpc:  &http.Client{Timeout: 8 * time.Second},
		base:   baseURL,
		symbol: symbol,
		ttl:    time.Minute,
	}
}

// Latest returns the most recent quote, serving from cache within the TTL.
func (c *Client) Latest(ctx context.Context) (Quote, error) {
	c.mu.RLock()
	if !c.fetched.IsZero() && time.Since(c.fetched) < c.ttl {
		q := c.cached
		c.mu.RUnlock()
		return q, nil
	}
	c.mu.RUnlock()

	q, err := c.fetch(ctx)
	if err != nil {
		return Quote{}, err
	}

	c.mu.Lock()
	c.cached = q
	c.fetched = time.Now()
	c.mu.Unlock()
	return q, nil
}

func (c *Client) fetch(ctx context.Context) (Quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", c.base, url.PathEscape(c.symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("User-Agent", "fund-engine/1.0")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("benchmark: fetch %s: %w", c.symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("benchmark: yahoo http %d for %s", resp.StatusCode, c.symbol)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					RegularMarketTime  int64   `json:"regularMarketTime"`
				} `json:"meta"`
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Quote{}, fmt.Errorf("benchmark: decode quote: %w", err)
	}
	if len(raw.Chart.Result) == 0 {
		return Quote{}, ErrNoQuote
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	asOf := time.Unix(r.Meta.RegularMarketTime, 0).UTC()

	// Fall back to the last non-zero intraday close when the meta block
	// is missing or stale.
	if (price <= 0 || r.Meta.RegularMarketTime == 0) &&
		len(r.Indicators.Quote) > 0 && len(r.Indicators.Quote[0].Close) == len(r.Timestamp) {
		for i := len(r.Timestamp) - 1; i >= 0; i-- {
			if cl := r.Indicators.Quote[0].Close[i]; cl > 0 {
				price = cl
				asOf = time.Unix(r.Timestamp[i], 0).UTC()
				break
			}
		}
	}
	if price <= 0 {
		return Quote{}, ErrNoQuote
	}

	return Quote{
		Symbol: c.symbol,
		Price:  decimal.NewFromFloat(price).Round(2),
		AsOf:   asOf,
	}, nil
}

// HandleLatest handles GET /api/v1/benchmark
func (c *Client) HandleLatest(w http.ResponseWriter, r *http.Request) {
	q, err := c.Latest(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "benchmark data unavailable"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(q)
}
