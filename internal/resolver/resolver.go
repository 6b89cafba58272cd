// Package resolver implements NAV-date reconciliation: given a requested
// transaction date and a scheme's NAV history, it finds the NAV to apply
// under the weekend/holiday/missing-data policy.
//
// Buy and sell resolution are deliberately distinct policies and must not
// be unified: buys require an exact-date sample (with previous-year and
// day-walk fallbacks), while sells take the latest sample at or before the
// nearest eligible business day, re-querying the oracle at each step.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/metrics"
	"github.com/fundsight/fund-engine/internal/model"
	"github.com/fundsight/fund-engine/internal/oracle"
)

var (
	// ErrNavUnavailable is returned when resolution exhausts the scheme's
	// series without finding an applicable NAV.
	ErrNavUnavailable = errors.New("resolver: no valid NAV available after adjustments")
)

// indianHolidays is the fixed set of month-day pairs ("DD-MM") treated as
// market holidays, evaluated independently of year.
var indianHolidays = map[string]bool{
	"01-01": true, // New Year's Day
	"26-01": true, // Republic Day
	"29-03": true,
	"14-04": true,
	"01-05": true, // May Day
	"15-08": true, // Independence Day
	"02-10": true, // Gandhi Jayanti
	"25-12": true, // Christmas
}

// Resolver resolves transaction dates against a scheme's NAV history.
type Resolver struct {
	oracle oracle.Oracle
}

// New creates a Resolver backed by the given NAV oracle.
func New(o oracle.Oracle) *Resolver {
	return &Resolver{oracle: o}
}

// Resolution is the outcome of a date resolution: the date the policy
// accepted and the NAV in force for it.
type Resolution struct {
	Date time.Time
	NAV  decimal.Decimal
}

// IsWeekend reports whether d falls on Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHoliday reports whether d's month-day pair is a fixed market holiday.
func IsHoliday(d time.Time) bool {
	return indianHolidays[d.Format("02-01")]
}

// ResolveBuy finds the NAV to apply to a buy requested on the given date.
// The series is fetched once. An exact-date sample wins immediately,
// regardless of weekday. Otherwise the same month/day of the previous year
// is tried (the requested date is still the one recorded), and failing
// that the target rolls backward one day at a time. The walk is bounded by
// the earliest sample in the series; exhausting it is ErrNavUnavailable.
func (r *Resolver) ResolveBuy(ctx context.Context, schemeCode string, requested time.Time) (Resolution, error) {
	hist, err := r.oracle.SchemeHistory(ctx, schemeCode)
	if err != nil {
		if errors.Is(err, oracle.ErrNoData) {
			return Resolution{}, ErrNavUnavailable
		}
		return Resolution{}, fmt.Errorf("resolve buy: %w", err)
	}
	if len(hist.Samples) == 0 {
		return Resolution{}, ErrNavUnavailable
	}

	if nav, ok := navOn(hist.Samples, requested); ok {
		return Resolution{Date: requested, NAV: nav}, nil
	}

	prevYear := requested.AddDate(-1, 0, 0)
	if nav, ok := navOn(hist.Samples, prevYear); ok {
		metrics.ResolverFallbacksTotal.WithLabelValues("previous_year").Inc()
		return Resolution{Date: requested, NAV: nav}, nil
	}

	earliest := earliestSample(hist.Samples)
	for d := requested.AddDate(0, 0, -1); !d.Before(earliest); d = d.AddDate(0, 0, -1) {
		if nav, ok := navOn(hist.Samples, d); ok {
			metrics.ResolverFallbacksTotal.WithLabelValues("day_walk").Inc()
			return Resolution{Date: d, NAV: nav}, nil
		}
	}
	return Resolution{}, ErrNavUnavailable
}

// ResolveSell finds the NAV to apply to a sell requested on the given date.
// Weekend and holiday dates are skipped backward; for each accepted
// business day the series is re-fetched and the first sample on or before
// that day (in oracle order) is taken. The walk is bounded by the earliest
// sample seen; exhausting it is ErrNavUnavailable.
func (r *Resolver) ResolveSell(ctx context.Context, schemeCode string, requested time.Time) (Resolution, error) {
	skipped := false

	for d := requested; ; d = d.AddDate(0, 0, -1) {
		if IsWeekend(d) || IsHoliday(d) {
			skipped = true
			continue
		}

		hist, err := r.oracle.SchemeHistory(ctx, schemeCode)
		if err != nil {
			if errors.Is(err, oracle.ErrNoData) {
				return Resolution{}, ErrNavUnavailable
			}
			return Resolution{}, fmt.Errorf("resolve sell: %w", err)
		}

		for _, s := range hist.Samples {
			if !s.Date.After(d) {
				if skipped {
					metrics.ResolverFallbacksTotal.WithLabelValues("sell_skip").Inc()
				}
				return Resolution{Date: d, NAV: s.NAV}, nil
			}
		}

		// Every sample is after d; rolling further back cannot produce a
		// match, so this is the lookback bound.
		return Resolution{}, ErrNavUnavailable
	}
}

// navOn returns the NAV of the first sample matching the given calendar
// date. Duplicate dates should not occur, but the first encountered wins.
func navOn(samples []model.NavSample, date time.Time) (decimal.Decimal, bool) {
	y, m, d := date.Date()
	for _, s := range samples {
		sy, sm, sd := s.Date.Date()
		if sy == y && sm == m && sd == d {
			return s.NAV, true
		}
	}
	return decimal.Decimal{}, false
}

// earliestSample returns the oldest sample date without assuming order.
func earliestSample(samples []model.NavSample) time.Time {
	earliest := samples[0].Date
	for _, s := range samples[1:] {
		if s.Date.Before(earliest) {
			earliest = s.Date
		}
	}
	return earliest
}
