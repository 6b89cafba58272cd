// Package registry maintains the fund summary cache: one row per tracked
// scheme, fully overwritten on every refresh with the latest NAV, return
// metrics from a simulated SIP, and a short NAV projection.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/events"
	"github.com/fundsight/fund-engine/internal/forecast"
	"github.com/fundsight/fund-engine/internal/metrics"
	"github.com/fundsight/fund-engine/internal/model"
	"github.com/fundsight/fund-engine/internal/oracle"
	"github.com/fundsight/fund-engine/internal/store"
)

// Defaults for the simulated SIP when the environment does not override them.
var DefaultSIPAmount = decimal.NewFromInt(1000)

const DefaultSIPMonths = 12

// Service refreshes and serves fund summaries.
type Service struct {
	store     store.Store
	oracle    oracle.Oracle
	hub       *events.Hub
	sipAmount decimal.Decimal
	sipMonths int
}

// NewService builds a registry service. Non-positive SIP parameters fall
// back to the defaults.
func NewService(st store.Store, orc oracle.Oracle, hub *events.Hub, sipAmount decimal.Decimal, sipMonths int) *Service {
	if sipAmount.Sign() <= 0 {
		sipAmount = DefaultSIPAmount
	}
	if sipMonths <= 0 {
		sipMonths = DefaultSIPMonths
	}
	return &Service{store: st, oracle: orc, hub: hub, sipAmount: sipAmount, sipMonths: sipMonths}
}

// RefreshResponse is the JSON body returned by a fund refresh.
type RefreshResponse struct {
	Fund           model.FundSummary        `json:"fund"`
	Recommendation *forecast.Recommendation `json:"recommendation,omitempty"`
	Forecast       []forecast.Point         `json:"forecast,omitempty"`
}

// Refresh fetches the scheme's history, recomputes its summary, and
// overwrites the cached row. The returned projection is nil when the
// history is too short to fit the model.
func (s *Service) Refresh(ctx context.Context, schemeCode string) (*RefreshResponse, error) {
	hist, err := s.oracle.SchemeHistory(ctx, schemeCode)
	if err != nil {
		return nil, err
	}
	if len(hist.Samples) == 0 {
		return nil, oracle.ErrNoData
	}

	latest := hist.Samples[0]
	for _, smp := range hist.Samples[1:] {
		if smp.Date.After(latest.Date) {
			latest = smp
		}
	}

	sip, err := simulateSIP(hist.Samples, s.sipAmount, s.sipMonths)
	if err != nil {
		return nil, err
	}

	summary := model.FundSummary{
		SchemeCode:           schemeCode,
		SchemeName:           hist.Meta.SchemeName,
		LastNAV:              latest.NAV,
		LastUpdated:          time.Now().UTC(),
		AbsoluteReturn:       sip.AbsoluteReturn,
		AnnualisedReturn:     sip.Annualised,
		FinalInvestmentValue: sip.FinalValue,
	}
	if err := s.store.UpsertFund(ctx, &summary); err != nil {
		return nil, err
	}
	s.trackFundCount(ctx)

	resp := &RefreshResponse{Fund: summary}
	points, rec, err := forecast.Project(hist.Samples, forecast.DefaultHorizon)
	switch {
	case err == nil:
		resp.Forecast = points
		resp.Recommendation = &rec
	case errors.Is(err, forecast.ErrSeriesTooShort):
		slog.Warn("nav history too short to forecast",
			"scheme_code", schemeCode, "samples", len(hist.Samples))
	default:
		return nil, err
	}

	if s.hub != nil {
		s.hub.Broadcast(events.Message{
			Type:       "fund_refreshed",
			SchemeCode: schemeCode,
			SchemeName: summary.SchemeName,
			Date:       latest.Date.Format(model.APIDateFormat),
			NAV:        latest.NAV.String(),
		})
	}
	slog.Info("fund refreshed",
		"scheme_code", schemeCode,
		"scheme_name", summary.SchemeName,
		"last_nav", latest.NAV.String(),
	)
	return resp, nil
}

// RefreshFund handles POST /api/v1/funds/{schemeCode}/refresh
func (s *Service) RefreshFund(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")
	if !model.ValidSchemeCode(schemeCode) {
		writeError(w, "invalid scheme code or no data found", http.StatusBadRequest)
		return
	}

	resp, err := s.Refresh(r.Context(), schemeCode)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, oracle.ErrNoData):
		writeError(w, "invalid scheme code or no data found", http.StatusBadRequest)
	case errors.Is(err, oracle.ErrUpstream):
		writeError(w, "nav source unavailable", http.StatusBadGateway)
	default:
		slog.Error("fund refresh failed", "scheme_code", schemeCode, "error", err)
		writeError(w, "failed to refresh fund", http.StatusInternalServerError)
	}
}

// ListFunds handles GET /api/v1/funds
func (s *Service) ListFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := s.store.ListFunds(r.Context())
	if err != nil {
		writeError(w, "failed to list funds", http.StatusInternalServerError)
		return
	}
	metrics.TrackedFunds.Set(float64(len(funds)))
	if funds == nil {
		funds = []model.FundSummary{}
	}
	writeJSON(w, http.StatusOK, funds)
}

// RemoveFund handles DELETE /api/v1/funds/{schemeCode}. Removing a scheme
// that was never tracked still succeeds.
func (s *Service) RemoveFund(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")
	if !model.ValidSchemeCode(schemeCode) {
		writeError(w, "invalid scheme code", http.StatusBadRequest)
		return
	}
	if err := s.store.RemoveFund(r.Context(), schemeCode); err != nil {
		writeError(w, "failed to remove fund", http.StatusInternalServerError)
		return
	}
	s.trackFundCount(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "fund removed successfully"})
}

func (s *Service) trackFundCount(ctx context.Context) {
	if funds, err := s.store.ListFunds(ctx); err == nil {
		metrics.TrackedFunds.Set(float64(len(funds)))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
