package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrCapacityExceeded indicates the device list is already at its limit.
	ErrCapacityExceeded = errors.New("repository: device capacity exceeded")
	// ErrCodeNotUsable indicates the code status permits no further bindings.
	ErrCodeNotUsable = errors.New("repository: code not usable")
	// ErrTransactionUnavailable signals the transactional primitive could not
	// be obtained; callers may fall back to a non-transactional update.
	ErrTransactionUnavailable = errors.New("repository: transaction unavailable")
)
