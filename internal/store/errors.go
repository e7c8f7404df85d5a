package store

import "errors"

// Business-rule failures surfaced by stores. Every mutation either commits
// in full or returns one of these with no state change.
var (
	// ErrMarketNotFound is returned when no market exists for the id.
	ErrMarketNotFound = errors.New("store: market not found")

	// ErrMarketExists is returned when creating a market with a taken id.
	ErrMarketExists = errors.New("store: market already exists")

	// ErrProfileNotFound is returned when no profile exists for the user id.
	ErrProfileNotFound = errors.New("store: profile not found")

	// ErrMarketLocked is returned when trading against an admin-frozen market.
	ErrMarketLocked = errors.New("store: market is locked")

	// ErrMarketResolved is returned when trading against a resolved market.
	ErrMarketResolved = errors.New("store: market is resolved")

	// ErrAlreadyResolved is returned when resolving a market twice.
	ErrAlreadyResolved = errors.New("store: market already resolved")

	// ErrInsufficientBalance is returned when a debit would drive a
	// balance negative.
	ErrInsufficientBalance = errors.New("store: insufficient balance")

	// ErrInsufficientShares is returned when a sell exceeds the holding.
	ErrInsufficientShares = errors.New("store: insufficient shares")

	// ErrConflict is returned when the market moved between quote and
	// commit. Callers should re-read and retry.
	ErrConflict = errors.New("store: concurrent update conflict, retry")
)
