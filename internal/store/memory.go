package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/model"
)

// MemoryStore implements Store with in-memory state. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	ledger []model.Transaction
	funds  map[string]*model.FundSummary
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		funds:  make(map[string]*model.FundSummary),
	}
}

func (s *MemoryStore) InsertTransaction(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextID
	s.nextID++
	s.ledger = append(s.ledger, *t)
	return nil
}

func (s *MemoryStore) LatestTotalUnits(_ context.Context, schemeCode string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Latest row by insertion order.
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].SchemeCode == schemeCode {
			return s.ledger[i].TotalUnits, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func (s *MemoryStore) TransactionsByScheme(_ context.Context, schemeCode string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txs []model.Transaction
	for _, t := range s.ledger {
		if t.SchemeCode == schemeCode {
			txs = append(txs, t)
		}
	}
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID > txs[j].ID
	})
	return txs, nil
}

func (s *MemoryStore) SchemeTotals(_ context.Context, schemeCode string) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invested := decimal.Zero
	latest := decimal.Zero
	for _, t := range s.ledger {
		if t.SchemeCode != schemeCode {
			continue
		}
		invested = invested.Add(t.Amount)
		latest = t.TotalUnits // rows are in insertion order
	}
	return invested, latest, nil
}

func (s *MemoryStore) UpsertFund(_ context.Context, f *model.FundSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *f
	s.funds[f.SchemeCode] = &copy
	return nil
}

func (s *MemoryStore) ListFunds(_ context.Context) ([]model.FundSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	funds := make([]model.FundSummary, 0, len(s.funds))
	for _, f := range s.funds {
		funds = append(funds, *f)
	}
	return funds, nil
}

func (s *MemoryStore) RemoveFund(_ context.Context, schemeCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.funds, schemeCode)
	return nil
}
