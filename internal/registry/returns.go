package registry

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/model"
)

var errEmptyHistory = errors.New("registry: empty nav history")

// sipResult holds the return metrics of a simulated systematic
// investment plan valued at the latest NAV.
type sipResult struct {
	Invested       decimal.Decimal
	FinalValue     decimal.Decimal
	AbsoluteReturn decimal.Decimal
	Annualised     decimal.Decimal
}

// simulateSIP runs a monthly-contribution plan against the scheme's NAV
// history: one contribution per month, the last landing on the latest
// sample date, each buying units at the NAV on or before the contribution
// date. Contribution dates older than the history are clamped to the
// earliest sample.
func simulateSIP(samples []model.NavSample, monthly decimal.Decimal, months int) (sipResult, error) {
	if len(samples) == 0 {
		return sipResult{}, errEmptyHistory
	}
	if monthly.Sign() <= 0 || months <= 0 {
		return sipResult{}, errors.New("registry: sip parameters must be positive")
	}

	sorted := make([]model.NavSample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	latest := sorted[len(sorted)-1]
	earliest := sorted[0]

	units := decimal.Zero
	for i := months - 1; i >= 0; i-- {
		contrib := latest.Date.AddDate(0, -i, 0)
		if contrib.Before(earliest.Date) {
			contrib = earliest.Date
		}
		nav := navAtOrBefore(sorted, contrib)
		units = units.Add(monthly.DivRound(nav, model.UnitScale))
	}

	invested := monthly.Mul(decimal.NewFromInt(int64(months)))
	final := units.Mul(latest.NAV).Round(2)
	absolute := final.Sub(invested).Div(invested).Mul(decimal.NewFromInt(100)).Round(2)

	// Annualising takes a fractional exponent, so this one computation
	// crosses into float64 and comes back rounded.
	ratio, _ := final.Div(invested).Float64()
	annualised := decimal.NewFromFloat((math.Pow(ratio, 12/float64(months)) - 1) * 100).Round(2)

	return sipResult{
		Invested:       invested,
		FinalValue:     final,
		AbsoluteReturn: absolute,
		Annualised:     annualised,
	}, nil
}

// navAtOrBefore returns the NAV of the most recent sample not after date.
// sorted must be ascending by date; the caller clamps date into range.
func navAtOrBefore(sorted []model.NavSample, date time.Time) decimal.Decimal {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].Date.After(date) })
	if i == 0 {
		return sorted[0].NAV
	}
	return sorted[i-1].NAV
}
