package benchmark_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/benchmark"
)

const chartPayload = `{
	"chart": {
		"result": [{
			"meta": {"regularMarketPrice": 51244.65, "regularMarketTime": 1711107000},
			"timestamp": [1711106940, 1711107000],
			"indicators": {"quote": [{"close": [51230.10, 51244.65]}]}
		}]
	}
}`

func TestLatest_UsesMetaPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartPayload))
	}))
	defer srv.Close()

	c := benchmark.NewClient(srv.URL, "^NSEBANK")
	q, err := c.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !q.Price.Equal(decimal.NewFromFloat(51244.65)) {
		t.Errorf("price = %s, want 51244.65", q.Price)
	}
	if q.Symbol != "^NSEBANK" {
		t.Errorf("symbol = %q", q.Symbol)
	}
}

func TestLatest_FallsBackToLastClose(t *testing.T) {
	payload := `{
		"chart": {
			"result": [{
				"meta": {"regularMarketPrice": 0, "regularMarketTime": 0},
				"timestamp": [1711106940, 1711107000],
				"indicators": {"quote": [{"close": [51230.10, 0]}]}
			}]
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := benchmark.NewClient(srv.URL, "^NSEBANK")
	q, err := c.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !q.Price.Equal(decimal.NewFromFloat(51230.10)) {
		t.Errorf("price = %s, want 51230.10", q.Price)
	}
}

func TestLatest_CachesWithinTTL(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(chartPayload))
	}))
	defer srv.Close()

	c := benchmark.NewClient(srv.URL, "^NSEBANK")
	for i := 0; i < 3; i++ {
		if _, err := c.Latest(context.Background()); err != nil {
			t.Fatalf("Latest #%d: %v", i+1, err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("upstream hits = %d, want 1", n)
	}
}

func TestLatest_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart": {"result": []}}`))
	}))
	defer srv.Close()

	c := benchmark.NewClient(srv.URL, "^NSEBANK")
	if _, err := c.Latest(context.Background()); err != benchmark.ErrNoQuote {
		t.Fatalf("err = %v, want ErrNoQuote", err)
	}
}

func TestHandleLatest_UpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := benchmark.NewClient(srv.URL, "^NSEBANK")
	w := httptest.NewRecorder()
	c.HandleLatest(w, httptest.NewRequest("GET", "/api/v1/benchmark", nil))
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}
