// Package store defines the persistence interface for the fund engine.
// Implementations include PostgreSQL (source of truth) and in-memory
// (for testing and development).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/model"
)

// Store is the persistence interface over the two tables: the append-only
// transactions ledger and the funds summary cache.
type Store interface {
	// --- Append-only ledger ---

	// InsertTransaction appends an immutable ledger row and fills in the
	// store-assigned monotonic ID.
	InsertTransaction(ctx context.Context, t *model.Transaction) error

	// LatestTotalUnits returns the running balance of the most recent
	// transaction for a scheme. ok is false when the scheme has no rows.
	LatestTotalUnits(ctx context.Context, schemeCode string) (units decimal.Decimal, ok bool, err error)

	// TransactionsByScheme returns all transactions for a scheme, ordered
	// by date descending.
	TransactionsByScheme(ctx context.Context, schemeCode string) ([]model.Transaction, error)

	// SchemeTotals returns the signed sum of all transaction amounts and
	// the latest running balance for a scheme (both zero when empty).
	SchemeTotals(ctx context.Context, schemeCode string) (netInvested, latestUnits decimal.Decimal, err error)

	// --- Fund summary cache ---

	// UpsertFund inserts or fully overwrites a fund summary by scheme code.
	UpsertFund(ctx context.Context, f *model.FundSummary) error

	// ListFunds returns all cached fund summaries. No ordering guarantee.
	ListFunds(ctx context.Context) ([]model.FundSummary, error)

	// RemoveFund deletes a fund summary by scheme code. Idempotent.
	RemoveFund(ctx context.Context, schemeCode string) error
}
