// Package model defines the core domain types shared across the fund engine.
// All monetary and unit values use shopspring/decimal, never float64.
package model

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// schemeCodeRe matches AMFI scheme codes (numeric identifiers).
var schemeCodeRe = regexp.MustCompile(`^[0-9]{3,10}$`)

// ValidSchemeCode reports whether s looks like an AMFI scheme code.
func ValidSchemeCode(s string) bool { return schemeCodeRe.MatchString(s) }

// UnitScale is the number of decimal places for unit quantities. NAV and
// amounts keep full decimal precision; only unit math is rounded.
const UnitScale int32 = 4

// NavDateFormat is the date layout used by the NAV oracle ("DD-MM-YYYY").
const NavDateFormat = "02-01-2006"

// APIDateFormat is the date layout accepted on the request surface ("YYYY-MM-DD").
const APIDateFormat = "2006-01-02"

// NavSample is one point of a scheme's NAV history. Immutable, sourced from
// the oracle. Samples are unique by date but not guaranteed to arrive sorted.
type NavSample struct {
	Date time.Time       `json:"date"`
	NAV  decimal.Decimal `json:"nav"`
}

// SchemeMeta describes a mutual fund scheme as reported by the oracle.
type SchemeMeta struct {
	SchemeCode     string `json:"scheme_code"`
	SchemeName     string `json:"scheme_name"`
	FundHouse      string `json:"fund_house,omitempty"`
	SchemeType     string `json:"scheme_type,omitempty"`
	SchemeCategory string `json:"scheme_category,omitempty"`
}

// SchemeHistory is the oracle payload for one scheme: metadata plus the full
// NAV time series.
type SchemeHistory struct {
	Meta    SchemeMeta  `json:"meta"`
	Samples []NavSample `json:"samples"`
}

// Transaction is an immutable row of the per-scheme ledger. Once appended,
// these are never modified or deleted. ID is a monotonic surrogate assigned
// by the store; Ref is the external identifier exposed over the API.
type Transaction struct {
	ID         int64           `json:"-" db:"id"`
	Ref        string          `json:"ref" db:"ref"`
	SchemeCode string          `json:"scheme_code" db:"scheme_code"`
	Date       time.Time       `json:"date" db:"date"`
	NAV        decimal.Decimal `json:"nav" db:"nav"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`           // signed: +buy, -sell
	Units      decimal.Decimal `json:"units" db:"units"`             // sign matches Amount
	TotalUnits decimal.Decimal `json:"total_units" db:"total_units"` // running balance after this row
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// FundSummary is the per-scheme cache row refreshed on lookup. Not a ledger:
// every refresh overwrites all fields.
type FundSummary struct {
	SchemeCode           string          `json:"scheme_code" db:"scheme_code"`
	SchemeName           string          `json:"scheme_name" db:"scheme_name"`
	LastNAV              decimal.Decimal `json:"last_nav" db:"last_nav"`
	LastUpdated          time.Time       `json:"last_updated" db:"last_updated"`
	AbsoluteReturn       decimal.Decimal `json:"absolute_return" db:"absolute_return"`
	AnnualisedReturn     decimal.Decimal `json:"irr_annualised_return" db:"irr_annualised_return"`
	FinalInvestmentValue decimal.Decimal `json:"final_investment_value" db:"final_investment_value"`
}
