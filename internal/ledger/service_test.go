package ledger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/ledger"
	"github.com/fundsight/fund-engine/internal/model"
	"github.com/fundsight/fund-engine/internal/resolver"
	"github.com/fundsight/fund-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

// stubOracle serves one fixed scheme history.
type stubOracle struct {
	hist *model.SchemeHistory
}

func (s *stubOracle) SchemeHistory(_ context.Context, _ string) (*model.SchemeHistory, error) {
	return s.hist, nil
}

// testHistory is a business-day NAV series, newest first (oracle order).
func testHistory() *model.SchemeHistory {
	samples := []model.NavSample{
		{Date: day(2024, time.March, 22), NAV: d(52)},
		{Date: day(2024, time.March, 21), NAV: d(51)},
		{Date: day(2024, time.March, 20), NAV: d(50)},
		{Date: day(2024, time.March, 15), NAV: d(50)},
		{Date: day(2024, time.March, 14), NAV: d(49)},
		{Date: day(2023, time.August, 15), NAV: d(55)},
	}
	return &model.SchemeHistory{
		Meta:    model.SchemeMeta{SchemeCode: "100001", SchemeName: "Test Growth Fund"},
		Samples: samples,
	}
}

// newTestEnv creates a ledger Service with in-memory store, stub oracle,
// and chi router.
func newTestEnv(t *testing.T) (*ledger.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	res := resolver.New(&stubOracle{hist: testHistory()})
	svc := ledger.NewService(ms, res, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/transactions/buy", svc.SubmitBuy)
	r.Post("/api/v1/transactions/sell", svc.SubmitSell)
	r.Get("/api/v1/schemes/{schemeCode}/transactions", svc.ListTransactions)
	r.Get("/api/v1/schemes/{schemeCode}/average-nav", svc.AverageNav)

	return svc, ms, r
}

func post(t *testing.T, router chi.Router, path string, req ledger.TransactionRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", path, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httpReq)
	return w
}

func doBuy(t *testing.T, router chi.Router, amount float64, date string) *httptest.ResponseRecorder {
	t.Helper()
	return post(t, router, "/api/v1/transactions/buy", ledger.TransactionRequest{
		SchemeCode: "100001", Amount: d(amount), Date: date,
	})
}

func doSell(t *testing.T, router chi.Router, amount float64, date string) *httptest.ResponseRecorder {
	t.Helper()
	return post(t, router, "/api/v1/transactions/sell", ledger.TransactionRequest{
		SchemeCode: "100001", Amount: d(amount), Date: date,
	})
}

// --- Buy tests ---

func TestSubmitBuy_RoundNumbers(t *testing.T) {
	// Buy 1000 at NAV 50 → units = 20.0000, total_units = 20.0000.
	_, _, router := newTestEnv(t)

	w := doBuy(t, router, 1000, "2024-03-20")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ledger.TransactionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Ref == "" {
		t.Error("expected non-empty ref")
	}
	if !resp.NAV.Equal(d(50)) {
		t.Errorf("expected nav=50, got %s", resp.NAV)
	}
	if !resp.Units.Equal(d(20)) {
		t.Errorf("expected units=20, got %s", resp.Units)
	}
	if !resp.TotalUnits.Equal(d(20)) {
		t.Errorf("expected total_units=20, got %s", resp.TotalUnits)
	}
	if resp.Date != "2024-03-20" {
		t.Errorf("expected date unchanged, got %s", resp.Date)
	}
}

func TestSubmitBuy_SaturdayResolvesToPriorBusinessDay(t *testing.T) {
	// 2024-03-16 is a Saturday with no sample and no previous-year match:
	// the buy resolves to Friday's NAV and the resolved date is returned.
	_, _, router := newTestEnv(t)

	w := doBuy(t, router, 500, "2024-03-16")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ledger.TransactionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Date != "2024-03-15" {
		t.Errorf("expected resolved date 2024-03-15, got %s", resp.Date)
	}
	if !resp.NAV.Equal(d(50)) {
		t.Errorf("expected Friday nav=50, got %s", resp.NAV)
	}
	if !resp.Units.Equal(d(10)) {
		t.Errorf("expected units=10, got %s", resp.Units)
	}
}

func TestSubmitBuy_HolidayUsesPreviousYearNav(t *testing.T) {
	// Independence Day 2024 has no sample; 2023-08-15 does. Its NAV is
	// applied while the recorded date stays the requested one.
	_, _, router := newTestEnv(t)

	w := doBuy(t, router, 550, "2024-08-15")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ledger.TransactionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.NAV.Equal(d(55)) {
		t.Errorf("expected previous-year nav=55, got %s", resp.NAV)
	}
	if resp.Date != "2024-08-15" {
		t.Errorf("expected requested date kept, got %s", resp.Date)
	}
}

func TestSubmitBuy_InvalidAmount(t *testing.T) {
	_, ms, router := newTestEnv(t)

	for _, amount := range []float64{0, -100} {
		w := doBuy(t, router, amount, "2024-03-20")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for amount=%v, got %d", amount, w.Code)
		}
	}

	txs, _ := ms.TransactionsByScheme(context.Background(), "100001")
	if len(txs) != 0 {
		t.Errorf("rejected buys must not append, got %d rows", len(txs))
	}
}

func TestSubmitBuy_InvalidDate(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doBuy(t, router, 1000, "20-03-2024")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed date, got %d", w.Code)
	}
}

func TestSubmitBuy_InvalidSchemeCode(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := post(t, router, "/api/v1/transactions/buy", ledger.TransactionRequest{
		SchemeCode: "not-a-code", Amount: d(1000), Date: "2024-03-20",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad scheme code, got %d", w.Code)
	}
}

// --- Sell tests ---

func TestSubmitSell_RoundTrip(t *testing.T) {
	// Buy 1000 at 50 → 20 units; sell 500 at 50 → 10 sold, 10 remain.
	_, ms, router := newTestEnv(t)

	doBuy(t, router, 1000, "2024-03-20")
	w := doSell(t, router, 500, "2024-03-21")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ledger.TransactionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	// 500 / 51 = 9.8039 units at Thursday's NAV.
	if !resp.NAV.Equal(d(51)) {
		t.Errorf("expected nav=51, got %s", resp.NAV)
	}
	if !resp.Units.Equal(d(-9.8039)) {
		t.Errorf("expected units=-9.8039, got %s", resp.Units)
	}
	if !resp.Amount.Equal(d(-500)) {
		t.Errorf("expected amount=-500, got %s", resp.Amount)
	}
	if !resp.TotalUnits.Equal(d(10.1961)) {
		t.Errorf("expected total_units=10.1961, got %s", resp.TotalUnits)
	}

	txs, _ := ms.TransactionsByScheme(context.Background(), "100001")
	if len(txs) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(txs))
	}
}

func TestSubmitSell_SameNavHalvesPosition(t *testing.T) {
	// Round trip: both legs at NAV 50.
	_, _, router := newTestEnv(t)

	doBuy(t, router, 1000, "2024-03-20")
	w := doSell(t, router, 500, "2024-03-20")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ledger.TransactionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.Units.Equal(d(-10)) {
		t.Errorf("expected units=-10, got %s", resp.Units)
	}
	if !resp.TotalUnits.Equal(d(10)) {
		t.Errorf("expected total_units=10, got %s", resp.TotalUnits)
	}
}

func TestSubmitSell_NoPosition(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doSell(t, router, 500, "2024-03-20")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for sell with no position, got %d", w.Code)
	}
}

func TestSubmitSell_InsufficientUnits(t *testing.T) {
	// Selling more than the balance is rejected and appends nothing.
	_, ms, router := newTestEnv(t)

	doBuy(t, router, 1000, "2024-03-20") // 20 units

	w := doSell(t, router, 5000, "2024-03-21")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized sell, got %d: %s", w.Code, w.Body.String())
	}

	txs, _ := ms.TransactionsByScheme(context.Background(), "100001")
	if len(txs) != 1 {
		t.Errorf("rejected sell must not append, got %d rows", len(txs))
	}
}

// --- Ledger invariants ---

func TestLedger_RunningBalanceInvariant(t *testing.T) {
	// For any sequence of operations, the Nth row's total_units equals the
	// signed sum of units of rows 1..N and never goes negative.
	_, ms, router := newTestEnv(t)

	doBuy(t, router, 1000, "2024-03-14")
	doBuy(t, router, 490, "2024-03-15")
	doSell(t, router, 500, "2024-03-20")
	doBuy(t, router, 255, "2024-03-21")
	doSell(t, router, 104, "2024-03-22")

	txs, _ := ms.TransactionsByScheme(context.Background(), "100001")
	if len(txs) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(txs))
	}

	// Replay in insertion order.
	byID := make([]model.Transaction, len(txs))
	copy(byID, txs)
	for i := 0; i < len(byID); i++ {
		for j := i + 1; j < len(byID); j++ {
			if byID[j].ID < byID[i].ID {
				byID[i], byID[j] = byID[j], byID[i]
			}
		}
	}

	running := decimal.Zero
	for _, tx := range byID {
		running = running.Add(tx.Units).Round(model.UnitScale)
		if !tx.TotalUnits.Equal(running) {
			t.Errorf("row %d: total_units=%s, running sum=%s", tx.ID, tx.TotalUnits, running)
		}
		if tx.TotalUnits.IsNegative() {
			t.Errorf("row %d: negative balance %s", tx.ID, tx.TotalUnits)
		}
	}
}

func TestListTransactions_DateDescending(t *testing.T) {
	_, _, router := newTestEnv(t)

	doBuy(t, router, 1000, "2024-03-14")
	doBuy(t, router, 1000, "2024-03-21")
	doBuy(t, router, 1000, "2024-03-15")

	req := httptest.NewRequest("GET", "/api/v1/schemes/100001/transactions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var views []struct {
		Date string `json:"date"`
	}
	json.Unmarshal(w.Body.Bytes(), &views)

	want := []string{"2024-03-21", "2024-03-15", "2024-03-14"}
	if len(views) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(views))
	}
	for i, v := range views {
		if v.Date != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], v.Date)
		}
	}
}

func TestListTransactions_EmptyIsArray(t *testing.T) {
	_, _, router := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/schemes/100001/transactions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body[0] != '[' {
		t.Errorf("expected JSON array, got %s", body)
	}
}

// --- Average NAV ---

func TestAverageNav_SingleBuy(t *testing.T) {
	_, _, router := newTestEnv(t)

	doBuy(t, router, 1000, "2024-03-20") // 20 units at 50

	req := httptest.NewRequest("GET", "/api/v1/schemes/100001/average-nav", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp struct {
		AverageNav decimal.Decimal `json:"average_nav"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.AverageNav.Equal(d(50)) {
		t.Errorf("expected average_nav=50, got %s", resp.AverageNav)
	}
}

func TestAverageNav_ZeroAfterFullSellOut(t *testing.T) {
	// Net of a full sell-out the balance is 0, so the average is 0 even
	// though historical gross amounts are nonzero.
	svc, _, router := newTestEnv(t)

	doBuy(t, router, 1000, "2024-03-20")  // 20 units at 50
	doSell(t, router, 1000, "2024-03-20") // sells all 20 at 50

	avg, err := svc.AverageCost(context.Background(), "100001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !avg.IsZero() {
		t.Errorf("expected average 0 after full sell-out, got %s", avg)
	}
}

func TestAverageNav_NoTransactions(t *testing.T) {
	svc, _, router := newTestEnv(t)
	_ = router

	avg, err := svc.AverageCost(context.Background(), "100001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !avg.IsZero() {
		t.Errorf("expected average 0 with no transactions, got %s", avg)
	}
}
