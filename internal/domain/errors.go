package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid stake request")
	ErrInvalidQuote   = errors.New("invalid mint quote")
	ErrNoRedemption   = errors.New("no redemption available")
	ErrChainTimeout   = errors.New("confirmation wait timed out")
	ErrNotCancellable = errors.New("workflow can no longer be cancelled")
	ErrLockHeld       = errors.New("lock already held")
)
