package usecase

import (
	"context"
	"errors"
	"net"

	"github.com/zvaradi/flipgate/internal/repository"
)

var (
	// ErrTimeout indicates a remote call exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrNetworkUnavailable indicates the backing service could not be reached.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrPermissionDenied indicates the entitlement store rejected the caller.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCapacityExceeded indicates the activation code has no device slots left.
	ErrCapacityExceeded = errors.New("maximum devices reached")
	// ErrCodeNotFound indicates the activation code does not exist.
	ErrCodeNotFound = errors.New("activation code not found")
	// ErrInvalidInput indicates the request failed basic validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorageUnavailable indicates the session or token store rejected a write.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotActivated indicates no committed session exists for the caller.
	ErrNotActivated = errors.New("not activated")
)

// classify maps infrastructure failures onto the coarse error taxonomy the
// transport layer translates into HTTP responses. Unrecognised errors pass
// through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, repository.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, repository.ErrCapacityExceeded):
		return ErrCapacityExceeded
	case errors.Is(err, repository.ErrCodeNotUsable):
		return ErrPermissionDenied
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}
		return ErrNetworkUnavailable
	}

	return err
}
