package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/metrics"
	"github.com/fundsight/fund-engine/internal/model"
)

// DefaultBaseURL is the public mfapi.in endpoint serving AMFI NAV history.
const DefaultBaseURL = "https://api.mfapi.in"

// MFAPIClient fetches scheme histories from mfapi.in.
// GET {base}/mf/{schemeCode} returns {meta, data: [{date, nav}], status}.
type MFAPIClient struct {
	baseURL string
	cli     *http.Client
}

// NewMFAPIClient creates a client for the given base URL. An empty baseURL
// uses DefaultBaseURL.
func NewMFAPIClient(baseURL string) *MFAPIClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &MFAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cli:     &http.Client{Timeout: 15 * time.Second},
	}
}

// mfapiResponse mirrors the wire format. Dates are "DD-MM-YYYY" strings and
// NAVs are decimal strings; scheme_code arrives as a JSON number.
type mfapiResponse struct {
	Meta struct {
		FundHouse      string      `json:"fund_house"`
		SchemeType     string      `json:"scheme_type"`
		SchemeCategory string      `json:"scheme_category"`
		SchemeCode     json.Number `json:"scheme_code"`
		SchemeName     string      `json:"scheme_name"`
	} `json:"meta"`
	Data []struct {
		Date string `json:"date"`
		NAV  string `json:"nav"`
	} `json:"data"`
	Status string `json:"status"`
}

// SchemeHistory fetches the full NAV history for a scheme. Returns ErrNoData
// when the code is unknown or the series is empty, ErrUpstream on transport
// or protocol failures.
func (c *MFAPIClient) SchemeHistory(ctx context.Context, schemeCode string) (*model.SchemeHistory, error) {
	start := time.Now()
	hist, err := c.fetch(ctx, schemeCode)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OracleFetchesTotal.WithLabelValues(outcome).Inc()
	metrics.OracleFetchDuration.Observe(time.Since(start).Seconds())
	return hist, err
}

func (c *MFAPIClient) fetch(ctx context.Context, schemeCode string) (*model.SchemeHistory, error) {
	url := fmt.Sprintf("%s/mf/%s", c.baseURL, schemeCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", "fund-engine/1.0")

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", ErrUpstream, resp.StatusCode)
	}

	var raw mfapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if len(raw.Data) == 0 {
		return nil, ErrNoData
	}

	hist := &model.SchemeHistory{
		Meta: model.SchemeMeta{
			SchemeCode:     raw.Meta.SchemeCode.String(),
			SchemeName:     raw.Meta.SchemeName,
			FundHouse:      raw.Meta.FundHouse,
			SchemeType:     raw.Meta.SchemeType,
			SchemeCategory: raw.Meta.SchemeCategory,
		},
		Samples: make([]model.NavSample, 0, len(raw.Data)),
	}
	if hist.Meta.SchemeCode == "" {
		hist.Meta.SchemeCode = schemeCode
	}

	// Preserve oracle order: resolution scans rely on first-encountered
	// semantics, and mfapi serves newest-first.
	for _, row := range raw.Data {
		date, err := time.Parse(model.NavDateFormat, row.Date)
		if err != nil {
			continue // skip malformed rows rather than failing the series
		}
		nav, err := decimal.NewFromString(row.NAV)
		if err != nil || nav.Sign() <= 0 {
			continue
		}
		hist.Samples = append(hist.Samples, model.NavSample{Date: date, NAV: nav})
	}
	if len(hist.Samples) == 0 {
		return nil, ErrNoData
	}
	return hist, nil
}
