package ledger

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/model"
	"github.com/fundsight/fund-engine/internal/resolver"
)

// TransactionRequest is the JSON body for buy and sell submissions.
type TransactionRequest struct {
	SchemeCode string          `json:"scheme_code"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"` // YYYY-MM-DD
}

// TransactionResponse is the JSON body returned for a recorded transaction.
type TransactionResponse struct {
	Message    string          `json:"message"`
	Ref        string          `json:"ref"`
	SchemeCode string          `json:"scheme_code"`
	Date       string          `json:"date"`
	NAV        decimal.Decimal `json:"nav"`
	Amount     decimal.Decimal `json:"amount"`
	Units      decimal.Decimal `json:"units"`
	TotalUnits decimal.Decimal `json:"total_units"`
}

// txView is the list representation of a ledger row.
type txView struct {
	Ref        string          `json:"ref"`
	Date       string          `json:"date"`
	NAV        decimal.Decimal `json:"nav"`
	Amount     decimal.Decimal `json:"amount"`
	Units      decimal.Decimal `json:"units"`
	TotalUnits decimal.Decimal `json:"total_units"`
}

// SubmitBuy handles POST /api/v1/transactions/buy
func (s *Service) SubmitBuy(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !model.ValidSchemeCode(req.SchemeCode) {
		writeError(w, ErrInvalidScheme.Error(), http.StatusBadRequest)
		return
	}

	t, err := s.RecordBuy(r.Context(), req.SchemeCode, req.Amount, req.Date)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse("transaction recorded", t))
}

// SubmitSell handles POST /api/v1/transactions/sell
func (s *Service) SubmitSell(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !model.ValidSchemeCode(req.SchemeCode) {
		writeError(w, ErrInvalidScheme.Error(), http.StatusBadRequest)
		return
	}

	t, err := s.RecordSell(r.Context(), req.SchemeCode, req.Amount, req.Date)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse("sale recorded", t))
}

// ListTransactions handles GET /api/v1/schemes/{schemeCode}/transactions
// Returns the scheme's ledger ordered by date descending.
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")
	if !model.ValidSchemeCode(schemeCode) {
		writeError(w, ErrInvalidScheme.Error(), http.StatusBadRequest)
		return
	}

	txs, err := s.store.TransactionsByScheme(r.Context(), schemeCode)
	if err != nil {
		writeError(w, "failed to list transactions", http.StatusInternalServerError)
		return
	}

	views := make([]txView, 0, len(txs))
	for _, t := range txs {
		views = append(views, txView{
			Ref:        t.Ref,
			Date:       t.Date.Format(model.APIDateFormat),
			NAV:        t.NAV,
			Amount:     t.Amount,
			Units:      t.Units,
			TotalUnits: t.TotalUnits,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// AverageNav handles GET /api/v1/schemes/{schemeCode}/average-nav
func (s *Service) AverageNav(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")
	if !model.ValidSchemeCode(schemeCode) {
		writeError(w, ErrInvalidScheme.Error(), http.StatusBadRequest)
		return
	}

	avg, err := s.AverageCost(r.Context(), schemeCode)
	if err != nil {
		writeError(w, "failed to compute average nav", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scheme_code": schemeCode,
		"average_nav": avg,
	})
}

func transactionResponse(message string, t *model.Transaction) TransactionResponse {
	return TransactionResponse{
		Message:    message,
		Ref:        t.Ref,
		SchemeCode: t.SchemeCode,
		Date:       t.Date.Format(model.APIDateFormat),
		NAV:        t.NAV,
		Amount:     t.Amount,
		Units:      t.Units,
		TotalUnits: t.TotalUnits,
	}
}

// statusFor maps ledger and resolution failures to HTTP status classes:
// validation and resolution errors are the caller's fault (400), anything
// else is unexpected (500).
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidScheme),
		errors.Is(err, ErrNoPosition),
		errors.Is(err, ErrInsufficientUnits),
		errors.Is(err, resolver.ErrNavUnavailable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
