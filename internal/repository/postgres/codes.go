package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgBeginner interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CodeRepository implements port.CodeRepository for PostgreSQL.
type CodeRepository struct {
	pool    *pgxpool.Pool
	exec    pgBeginner
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewCodeRepository constructs a repository backed by any executor that can
// also begin transactions (a pgx pool or a pgxmock pool in tests).
func NewCodeRepository(exec pgBeginner) *CodeRepository {
	repo := &CodeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithClock injects a custom clock, primarily for tests.
func (r *CodeRepository) WithClock(now func() time.Time) *CodeRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Create inserts a fresh activation code record.
func (r *CodeRepository) Create(ctx context.Context, code domain.ActivationCode) error {
	devices, err := marshalDevices(code.Devices)
	if err != nil {
		return err
	}

	lastUpdated := code.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = r.now().UTC()
	}
	status := code.Status
	if status == "" {
		status = domain.CodeStatusUnused
	}

	sqlStmt, args, err := r.builder.Insert("flipgate.activation_codes").
		Columns("code", "status", "devices", "max_devices", "last_updated").
		Values(
			domain.NormalizeCode(code.Code),
			status,
			devices,
			code.EffectiveMaxDevices(),
			lastUpdated,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert code sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sqlStmt, args...); err != nil {
		return fmt.Errorf("insert activation code: %w", err)
	}

	return nil
}

// GetByCode returns the record for the supplied code.
func (r *CodeRepository) GetByCode(ctx context.Context, code string) (*domain.ActivationCode, error) {
	return r.get(ctx, r.exec, domain.NormalizeCode(code), false)
}

// BindDevice appends the binding inside a transaction. The record is re-read
// with a row lock immediately before the write, and the capacity and
// duplicate-device invariants are re-validated against that fresh read.
func (r *CodeRepository) BindDevice(ctx context.Context, code string, binding domain.DeviceBinding) (*domain.ActivationCode, error) {
	normalized := domain.NormalizeCode(code)

	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrTransactionUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	record, err := r.get(ctx, tx, normalized, true)
	if err != nil {
		return nil, err
	}

	if !record.IsUsable() {
		return nil, repository.ErrCodeNotUsable
	}

	// Fresh-read invariants: a duplicate device is a no-op success, a full
	// device list refuses the binding.
	if record.HasDevice(binding.DeviceID) {
		return record, nil
	}
	if record.AtCapacity() {
		return nil, repository.ErrCapacityExceeded
	}

	at := r.now().UTC()
	record.Bind(binding, at)

	if err := r.writeDevices(ctx, tx, normalized, record.Devices, record.Status, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit bind transaction: %w", err)
	}

	return record, nil
}

// UpdateDevices replaces the device list without a transaction. Degraded
// path only: invariants are whatever the caller validated beforehand.
func (r *CodeRepository) UpdateDevices(ctx context.Context, code string, devices []domain.DeviceBinding, status domain.CodeStatus) error {
	return r.writeDevices(ctx, r.exec, domain.NormalizeCode(code), devices, status, r.now().UTC())
}

func (r *CodeRepository) get(ctx context.Context, exec pgExecutor, code string, forUpdate bool) (*domain.ActivationCode, error) {
	query := r.builder.
		Select("code", "status", "devices", "max_devices", "last_updated").
		From("flipgate.activation_codes").
		Where(squirrel.Eq{"code": code}).
		Limit(1)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	sqlStmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select code sql: %w", err)
	}

	row := exec.QueryRow(ctx, sqlStmt, args...)

	var (
		record  domain.ActivationCode
		devices []byte
	)
	if err := row.Scan(
		&record.Code,
		&record.Status,
		&devices,
		&record.MaxDevices,
		&record.LastUpdated,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan activation code: %w", err)
	}

	if len(devices) > 0 {
		if err := json.Unmarshal(devices, &record.Devices); err != nil {
			return nil, fmt.Errorf("unmarshal devices for %s: %w", code, err)
		}
	}

	return &record, nil
}

func (r *CodeRepository) writeDevices(ctx context.Context, exec pgExecutor, code string, devices []domain.DeviceBinding, status domain.CodeStatus, at time.Time) error {
	payload, err := marshalDevices(devices)
	if err != nil {
		return err
	}

	sqlStmt, args, err := r.builder.Update("flipgate.activation_codes").
		Set("devices", payload).
		Set("status", status).
		Set("last_updated", at).
		Where(squirrel.Eq{"code": code}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update code sql: %w", err)
	}

	tag, err := exec.Exec(ctx, sqlStmt, args...)
	if err != nil {
		return fmt.Errorf("update activation code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func marshalDevices(devices []domain.DeviceBinding) ([]byte, error) {
	if devices == nil {
		devices = []domain.DeviceBinding{}
	}

	payload, err := json.Marshal(devices)
	if err != nil {
		return nil, fmt.Errorf("marshal devices: %w", err)
	}
	return payload, nil
}

var _ port.CodeRepository = (*CodeRepository)(nil)
