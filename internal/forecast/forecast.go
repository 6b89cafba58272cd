// Package forecast implements short-term NAV trend extrapolation: an
// autoregressive model of order 5 fit on first differences of the series
// (the classic ARIMA(5,1,0) shape), projected forward to produce a
// buy/sell/hold recommendation.
//
// NAV values use shopspring/decimal at the boundary. Internal estimation
// uses float64 (the fit is a least-squares problem, not money arithmetic)
// with results converted back to decimal immediately.
package forecast

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/model"
)

// Order is the autoregressive order fit on the differenced series.
const Order = 5

// DefaultHorizon is the number of daily steps projected forward.
const DefaultHorizon = 30

// MinSamples is the smallest series the estimator accepts.
const MinSamples = Order*2 + 2

// ErrSeriesTooShort is returned when the series cannot support the fit.
var ErrSeriesTooShort = errors.New("forecast: series too short to fit model")

// Recommendation actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Point is one projected NAV value.
type Point struct {
	Date time.Time       `json:"date"`
	NAV  decimal.Decimal `json:"nav"`
}

// Recommendation is the trading suggestion derived from the projection.
type Recommendation struct {
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Model holds AR coefficients fit on the differenced series.
type Model struct {
	coef  []float64 // AR coefficients; nil means drift fallback
	drift float64   // mean difference, used when the fit is degenerate
	last  float64   // last observed level
	tail  []float64 // most recent Order differences, newest last
}

// Fit estimates an AR(Order) model on the first differences of the series.
// Samples may arrive in any order; they are sorted by date internally.
// Degenerate series (constant differences) fall back to a drift model.
func Fit(samples []model.NavSample) (*Model, error) {
	if len(samples) < MinSamples {
		return nil, ErrSeriesTooShort
	}

	sorted := make([]model.NavSample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	values := make([]float64, len(sorted))
	for i, s := range sorted {
		values[i] = s.NAV.InexactFloat64()
	}

	diffs := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs[i-1] = values[i] - values[i-1]
	}

	m := &Model{
		last: values[len(values)-1],
		tail: append([]float64(nil), diffs[len(diffs)-Order:]...),
	}

	// Drift term doubles as the fallback when the normal equations are
	// singular (e.g. perfectly linear series).
	sum := 0.0
	for _, d := range diffs {
		sum += d
	}
	m.drift = sum / float64(len(diffs))

	if coef, ok := fitAR(diffs); ok {
		m.coef = coef
	}
	return m, nil
}

// Forecast projects the next `steps` levels.
func (m *Model) Forecast(steps int) []float64 {
	tail := append([]float64(nil), m.tail...)
	level := m.last
	out := make([]float64, 0, steps)

	for i := 0; i < steps; i++ {
		var next float64
		if m.coef == nil {
			next = m.drift
		} else {
			// tail is newest last; coef[k] multiplies the k-th lag.
			for k := 0; k < Order; k++ {
				next += m.coef[k] * tail[len(tail)-1-k]
			}
		}
		level += next
		out = append(out, level)
		tail = append(tail[1:], next)
	}
	return out
}

// Recommend compares the last two projected values, mirroring the original
// trend heuristic: rising → buy, falling → sell, flat → hold.
func Recommend(levels []float64) Recommendation {
	if len(levels) < 2 {
		return Recommendation{
			Action:      ActionHold,
			Description: "Not enough forecast data; holding is the stable choice.",
		}
	}
	last := levels[len(levels)-2]
	next := levels[len(levels)-1]
	switch {
	case next > last:
		return Recommendation{
			Action:      ActionBuy,
			Description: "The NAV is predicted to increase, indicating potential growth. It might be a good opportunity to invest.",
		}
	case next < last:
		return Recommendation{
			Action:      ActionSell,
			Description: "The NAV is predicted to decrease, suggesting a decline. You might consider selling or holding off investments.",
		}
	default:
		return Recommendation{
			Action:      ActionHold,
			Description: "There are no significant fluctuations in NAV. Holding the investment may be a stable choice.",
		}
	}
}

// Project fits the model and returns dated projections for the given
// horizon plus the derived recommendation. Projection dates are the
// calendar days following the latest sample.
func Project(samples []model.NavSample, steps int) ([]Point, Recommendation, error) {
	m, err := Fit(samples)
	if err != nil {
		return nil, Recommendation{}, err
	}

	latest := samples[0].Date
	for _, s := range samples[1:] {
		if s.Date.After(latest) {
			latest = s.Date
		}
	}

	levels := m.Forecast(steps)
	points := make([]Point, len(levels))
	for i, v := range levels {
		points[i] = Point{
			Date: latest.AddDate(0, 0, i+1),
			NAV:  decimal.NewFromFloat(v).Round(model.UnitScale),
		}
	}
	return points, Recommend(levels), nil
}

// fitAR solves the least-squares AR(Order) fit on diffs via the normal
// equations. Returns ok=false when the system is singular.
func fitAR(diffs []float64) ([]float64, bool) {
	n := len(diffs) - Order
	if n < Order {
		return nil, false
	}

	// A = XᵀX, b = Xᵀy with X rows of lagged differences.
	var a [Order][Order]float64
	var b [Order]float64
	for t := Order; t < len(diffs); t++ {
		y := diffs[t]
		for i := 0; i < Order; i++ {
			xi := diffs[t-1-i]
			b[i] += xi * y
			for j := 0; j < Order; j++ {
				a[i][j] += xi * diffs[t-1-j]
			}
		}
	}

	// Gaussian elimination with partial pivoting.
	var aug [Order][Order + 1]float64
	for i := 0; i < Order; i++ {
		for j := 0; j < Order; j++ {
			aug[i][j] = a[i][j]
		}
		aug[i][Order] = b[i]
	}
	for col := 0; col < Order; col++ {
		pivot := col
		for row := col + 1; row < Order; row++ {
			if abs(aug[row][col]) > abs(aug[pivot][col]) {
				pivot = row
			}
		}
		if abs(aug[pivot][col]) < 1e-12 {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]
		for row := col + 1; row < Order; row++ {
			f := aug[row][col] / aug[col][col]
			for j := col; j <= Order; j++ {
				aug[row][j] -= f * aug[col][j]
			}
		}
	}

	coef := make([]float64, Order)
	for i := Order - 1; i >= 0; i-- {
		v := aug[i][Order]
		for j := i + 1; j < Order; j++ {
			v -= aug[i][j] * coef[j]
		}
		coef[i] = v / aug[i][i]
	}
	return coef, true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
