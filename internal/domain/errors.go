package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidBid      = errors.New("invalid bid")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMarketNotFound  = errors.New("market not found")
	ErrMarketClosed    = errors.New("market already distributed")
	ErrStorageFailure  = errors.New("storage failure")
	ErrVersionConflict = errors.New("document version conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrLockHeld        = errors.New("lock already held")
)
