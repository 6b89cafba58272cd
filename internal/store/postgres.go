package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transactions (ref, scheme_code, date, nav, amount, units, total_units, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)
		 RETURNING id`,
		t.Ref, t.SchemeCode, t.Date,
		t.NAV.String(), t.Amount.String(), t.Units.String(), t.TotalUnits.String(),
		t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.SchemeCode, err)
	}
	return nil
}

func (s *PostgresStore) LatestTotalUnits(ctx context.Context, schemeCode string) (decimal.Decimal, bool, error) {
	var unitsS string
	err := s.pool.QueryRow(ctx,
		`SELECT total_units::TEXT FROM transactions
		 WHERE scheme_code = $1 ORDER BY id DESC LIMIT 1`, schemeCode).
		Scan(&unitsS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("latest balance %s: %w", schemeCode, err)
	}
	units, _ := decimal.NewFromString(unitsS)
	return units, true, nil
}

func (s *PostgresStore) TransactionsByScheme(ctx context.Context, schemeCode string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ref, scheme_code, date,
		        nav::TEXT, amount::TEXT, units::TEXT, total_units::TEXT,
		        created_at
		 FROM transactions WHERE scheme_code = $1 ORDER BY date DESC, id DESC`, schemeCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var navS, amountS, unitsS, totalS string
		if err := rows.Scan(&t.ID, &t.Ref, &t.SchemeCode, &t.Date,
			&navS, &amountS, &unitsS, &totalS, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.NAV, _ = decimal.NewFromString(navS)
		t.Amount, _ = decimal.NewFromString(amountS)
		t.Units, _ = decimal.NewFromString(unitsS)
		t.TotalUnits, _ = decimal.NewFromString(totalS)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) SchemeTotals(ctx context.Context, schemeCode string) (decimal.Decimal, decimal.Decimal, error) {
	var investedS, unitsS string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::TEXT,
		        COALESCE((SELECT total_units FROM transactions
		                  WHERE scheme_code = $1 ORDER BY id DESC LIMIT 1), 0)::TEXT
		 FROM transactions WHERE scheme_code = $1`, schemeCode).
		Scan(&investedS, &unitsS)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("scheme totals %s: %w", schemeCode, err)
	}
	invested, _ := decimal.NewFromString(investedS)
	units, _ := decimal.NewFromString(unitsS)
	return invested, units, nil
}

func (s *PostgresStore) UpsertFund(ctx context.Context, f *model.FundSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO funds (scheme_code, scheme_name, last_nav, last_updated,
		                    absolute_return, irr_annualised_return, final_investment_value)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC)
		 ON CONFLICT (scheme_code) DO UPDATE SET
		     scheme_name = EXCLUDED.scheme_name,
		     last_nav = EXCLUDED.last_nav,
		     last_updated = EXCLUDED.last_updated,
		     absolute_return = EXCLUDED.absolute_return,
		     irr_annualised_return = EXCLUDED.irr_annualised_return,
		     final_investment_value = EXCLUDED.final_investment_value`,
		f.SchemeCode, f.SchemeName, f.LastNAV.String(), f.LastUpdated,
		f.AbsoluteReturn.String(), f.AnnualisedReturn.String(), f.FinalInvestmentValue.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert fund %s: %w", f.SchemeCode, err)
	}
	return nil
}

func (s *PostgresStore) ListFunds(ctx context.Context) ([]model.FundSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT scheme_code, scheme_name,
		        last_nav::TEXT, last_updated,
		        absolute_return::TEXT, irr_annualised_return::TEXT, final_investment_value::TEXT
		 FROM funds`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funds []model.FundSummary
	for rows.Next() {
		var f model.FundSummary
		var navS, absS, annS, finalS string
		if err := rows.Scan(&f.SchemeCode, &f.SchemeName, &navS, &f.LastUpdated,
			&absS, &annS, &finalS); err != nil {
			return nil, err
		}
		f.LastNAV, _ = decimal.NewFromString(navS)
		f.AbsoluteReturn, _ = decimal.NewFromString(absS)
		f.AnnualisedReturn, _ = decimal.NewFromString(annS)
		f.FinalInvestmentValue, _ = decimal.NewFromString(finalS)
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

func (s *PostgresStore) RemoveFund(ctx context.Context, schemeCode string) error {
	// Deleting an absent row is not an error.
	_, err := s.pool.Exec(ctx, `DELETE FROM funds WHERE scheme_code = $1`, schemeCode)
	if err != nil {
		return fmt.Errorf("remove fund %s: %w", schemeCode, err)
	}
	return nil
}
