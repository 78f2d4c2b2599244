// Package errs collects the sentinel errors raised across ironbook's core.
// Every public operation validates before it mutates and returns one of
// these (or wraps one with fmt.Errorf("%w: ...")) rather than panicking.
package errs

import "errors"

var (
	// ErrInvalidData covers null/empty/negative inputs where disallowed.
	ErrInvalidData = errors.New("invalid data")

	// ErrInvalidPriceOperation covers arithmetic or comparison involving
	// MARKET where the operation is undefined.
	ErrInvalidPriceOperation = errors.New("invalid price operation")

	// ErrDataValidation covers quote price/volume constraint violations.
	ErrDataValidation = errors.New("data validation failed")

	// ErrInvalidMarketState means the operation is disallowed in the
	// current market state.
	ErrInvalidMarketState = errors.New("invalid market state")

	// ErrInvalidMarketStateTransition means the requested transition is
	// not in the allowed CLOSED -> PREOPEN -> OPEN -> CLOSED matrix.
	ErrInvalidMarketStateTransition = errors.New("invalid market state transition")

	// ErrNoSuchProduct means the product symbol is not registered.
	ErrNoSuchProduct = errors.New("no such product")

	// ErrProductAlreadyExists means create_product was called twice for
	// the same symbol.
	ErrProductAlreadyExists = errors.New("product already exists")

	// ErrOrderNotFound means a cancel targeted an id absent from both the
	// active books and the old-entries archive.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidStock means a publisher was asked about a topic it has
	// never heard of.
	ErrInvalidStock = errors.New("invalid stock")

	// ErrAlreadySubscribed means a double-subscribe was attempted.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrNotSubscribed means unsubscribe was attempted by a non-subscriber.
	ErrNotSubscribed = errors.New("not subscribed")

	// Session-layer errors (external adapter, see internal/adapter).
	ErrUserNotConnected   = errors.New("user not connected")
	ErrInvalidConnectionID = errors.New("invalid connection id")
	ErrAlreadyConnected   = errors.New("already connected")
)
