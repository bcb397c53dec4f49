package port

import (
	"context"

	"github.com/zvaradi/flipgate/internal/core/domain"
)

// CodeRepository persists activation code records in the entitlement store.
type CodeRepository interface {
	// GetByCode returns the record for the supplied code, or repository.ErrNotFound.
	GetByCode(ctx context.Context, code string) (*domain.ActivationCode, error)

	// Create inserts a fresh, unused activation code record.
	Create(ctx context.Context, code domain.ActivationCode) error

	// BindDevice appends the binding inside a transaction that re-reads the
	// record immediately before the write and re-validates capacity and
	// duplicate-device invariants against that fresh read. Returns the record
	// as of the commit. A duplicate device is a no-op success. When the
	// transaction primitive itself is unavailable the call fails with
	// repository.ErrTransactionUnavailable so callers can fall back to
	// UpdateDevices.
	BindDevice(ctx context.Context, code string, binding domain.DeviceBinding) (*domain.ActivationCode, error)

	// UpdateDevices replaces the device list and status without a transaction.
	// Degraded path only: duplicate and capacity checks are best-effort here.
	UpdateDevices(ctx context.Context, code string, devices []domain.DeviceBinding, status domain.CodeStatus) error
}
