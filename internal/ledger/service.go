// Package ledger provides the HTTP handlers and business logic for the
// append-only transaction ledger: recording buys and sells against a
// running per-scheme unit balance and answering balance/cost queries.
//
// All monetary values use shopspring/decimal, never float64.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/events"
	"github.com/fundsight/fund-engine/internal/metrics"
	"github.com/fundsight/fund-engine/internal/model"
	"github.com/fundsight/fund-engine/internal/resolver"
	"github.com/fundsight/fund-engine/internal/store"
)

// Service handles ledger operations. Read-then-append is serialized per
// scheme code: two concurrent operations on the same scheme cannot compute
// their new balance from a stale one.
type Service struct {
	store    store.Store
	resolver *resolver.Resolver
	hub      *events.Hub // optional event hub for broadcasts

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new ledger service.
// Pass nil for hub if event broadcasting is not needed.
func NewService(st store.Store, res *resolver.Resolver, hub *events.Hub) *Service {
	return &Service{
		store:    st,
		resolver: res,
		hub:      hub,
		locks:    make(map[string]*sync.Mutex),
	}
}

// schemeLock returns the mutex serializing operations for one scheme.
func (s *Service) schemeLock(schemeCode string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[schemeCode]
	if !ok {
		l = &sync.Mutex{}
		s.locks[schemeCode] = l
	}
	return l
}

// RecordBuy resolves the NAV for the requested date under the buy policy,
// computes purchased units at 4 decimal places, and appends a transaction
// carrying the new running balance. The recorded date may differ from the
// requested one when the resolver walked backward.
func (s *Service) RecordBuy(ctx context.Context, schemeCode string, amount decimal.Decimal, dateStr string) (*model.Transaction, error) {
	if amount.Sign() <= 0 {
		metrics.TransactionRejections.WithLabelValues("invalid_amount").Inc()
		return nil, ErrInvalidAmount
	}
	requested, err := time.Parse(model.APIDateFormat, dateStr)
	if err != nil {
		metrics.TransactionRejections.WithLabelValues("invalid_date").Inc()
		return nil, ErrInvalidDate
	}

	lock := s.schemeLock(schemeCode)
	lock.Lock()
	defer lock.Unlock()

	res, err := s.resolver.ResolveBuy(ctx, schemeCode, requested)
	if err != nil {
		if errors.Is(err, resolver.ErrNavUnavailable) {
			metrics.TransactionRejections.WithLabelValues("nav_unavailable").Inc()
		}
		return nil, err
	}

	units := amount.DivRound(res.NAV, model.UnitScale)
	balance, _, err := s.store.LatestTotalUnits(ctx, schemeCode)
	if err != nil {
		return nil, err
	}
	newBalance := balance.Add(units).Round(model.UnitScale)

	t := &model.Transaction{
		Ref:        uuid.New().String(),
		SchemeCode: schemeCode,
		Date:       res.Date,
		NAV:        res.NAV,
		Amount:     amount,
		Units:      units,
		TotalUnits: newBalance,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}

	metrics.TransactionsTotal.WithLabelValues("buy").Inc()
	slog.Info("buy recorded",
		"scheme", schemeCode,
		"date", t.Date.Format(model.APIDateFormat),
		"nav", t.NAV.String(),
		"units", t.Units.String(),
		"total_units", t.TotalUnits.String(),
	)
	s.broadcast("buy", t)
	return t, nil
}

// RecordSell resolves the NAV under the sell policy (latest sample at or
// before the nearest eligible business day), checks the balance, and
// appends a transaction with negated amount and units. The recorded date is
// always the requested one.
func (s *Service) RecordSell(ctx context.Context, schemeCode string, amount decimal.Decimal, dateStr string) (*model.Transaction, error) {
	if amount.Sign() <= 0 {
		metrics.TransactionRejections.WithLabelValues("invalid_amount").Inc()
		return nil, ErrInvalidAmount
	}
	requested, err := time.Parse(model.APIDateFormat, dateStr)
	if err != nil {
		metrics.TransactionRejections.WithLabelValues("invalid_date").Inc()
		return nil, ErrInvalidDate
	}

	lock := s.schemeLock(schemeCode)
	lock.Lock()
	defer lock.Unlock()

	balance, ok, err := s.store.LatestTotalUnits(ctx, schemeCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.TransactionRejections.WithLabelValues("no_position").Inc()
		return nil, ErrNoPosition
	}

	res, err := s.resolver.ResolveSell(ctx, schemeCode, requested)
	if err != nil {
		if errors.Is(err, resolver.ErrNavUnavailable) {
			metrics.TransactionRejections.WithLabelValues("nav_unavailable").Inc()
		}
		return nil, err
	}

	unitsToSell := amount.DivRound(res.NAV, model.UnitScale)
	if unitsToSell.GreaterThan(balance) {
		metrics.TransactionRejections.WithLabelValues("insufficient_units").Inc()
		return nil, ErrInsufficientUnits
	}
	newBalance := balance.Sub(unitsToSell).Round(model.UnitScale)

	t := &model.Transaction{
		Ref:        uuid.New().String(),
		SchemeCode: schemeCode,
		Date:       requested,
		NAV:        res.NAV,
		Amount:     amount.Neg(),
		Units:      unitsToSell.Neg(),
		TotalUnits: newBalance,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}

	metrics.TransactionsTotal.WithLabelValues("sell").Inc()
	slog.Info("sell recorded",
		"scheme", schemeCode,
		"date", t.Date.Format(model.APIDateFormat),
		"nav", t.NAV.String(),
		"units_sold", unitsToSell.String(),
		"total_units", t.TotalUnits.String(),
	)
	s.broadcast("sell", t)
	return t, nil
}

// AverageCost returns the net invested capital per unit currently held:
// round(sum of signed amounts / latest balance, 4), or zero when the
// balance is zero. Sell amounts are negative in the sum, so this is not a
// pure average buy price.
func (s *Service) AverageCost(ctx context.Context, schemeCode string) (decimal.Decimal, error) {
	invested, latestUnits, err := s.store.SchemeTotals(ctx, schemeCode)
	if err != nil {
		return decimal.Zero, err
	}
	if latestUnits.Sign() <= 0 {
		return decimal.Zero, nil
	}
	return invested.DivRound(latestUnits, model.UnitScale), nil
}

func (s *Service) broadcast(side string, t *model.Transaction) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(events.Message{
		Type:       "transaction_recorded",
		SchemeCode: t.SchemeCode,
		Ref:        t.Ref,
		Side:       side,
		Date:       t.Date.Format(model.APIDateFormat),
		NAV:        t.NAV.String(),
		Units:      t.Units.String(),
		TotalUnits: t.TotalUnits.String(),
	})
}
