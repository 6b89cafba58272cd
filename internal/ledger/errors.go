package ledger

import "errors"

var (
	// ErrInvalidAmount is returned when a buy or sell amount is not positive.
	ErrInvalidAmount = errors.New("ledger: amount must be greater than zero")

	// ErrInvalidDate is returned when a transaction date is not parseable.
	ErrInvalidDate = errors.New("ledger: invalid date format, use YYYY-MM-DD")

	// ErrInvalidScheme is returned when a scheme code is empty or malformed.
	ErrInvalidScheme = errors.New("ledger: invalid scheme code")

	// ErrNoPosition is returned on a sell against a scheme with no prior
	// transactions.
	ErrNoPosition = errors.New("ledger: no units available for this scheme")

	// ErrInsufficientUnits is returned when a sell would exceed the current
	// balance.
	ErrInsufficientUnits = errors.New("ledger: insufficient units to sell")
)
