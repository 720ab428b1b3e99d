package domain

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStakeTooLarge     = errors.New("stake exceeds per-bet limit")
	ErrMarketClosed      = errors.New("market is not open")
	ErrInvalidState      = errors.New("invalid market state")
	ErrAlreadyResolved   = errors.New("market already resolved")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrRateLimited       = errors.New("rate limited")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrLockHeld          = errors.New("lock already held")
)
