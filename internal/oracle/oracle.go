// Package oracle provides access to the historical NAV data source.
// The external service is consumed as a read-only oracle: given a scheme
// code it returns the scheme's metadata and full NAV time series.
package oracle

import (
	"context"
	"errors"

	"github.com/fundsight/fund-engine/internal/model"
)

var (
	// ErrNoData is returned when the oracle has no usable NAV data for a
	// scheme (unknown code or empty series).
	ErrNoData = errors.New("oracle: no NAV data for scheme")

	// ErrUpstream is returned when the upstream fetch itself fails.
	ErrUpstream = errors.New("oracle: upstream fetch failed")
)

// Oracle fetches the historical NAV series for a scheme.
type Oracle interface {
	SchemeHistory(ctx context.Context, schemeCode string) (*model.SchemeHistory, error)
}
