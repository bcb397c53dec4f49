package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/infra/logger"
	"github.com/zvaradi/flipgate/internal/infra/security"
	"github.com/zvaradi/flipgate/internal/repository"
)

const maxBatchSize = 100

// AdminService provisions activation codes and inspects their bindings.
type AdminService struct {
	codes             port.CodeRepository
	defaultMaxDevices int
	logger            *zap.Logger
}

// NewAdminService constructs an AdminService. defaultMaxDevices applies to
// provisioned codes that do not carry an explicit device limit.
func NewAdminService(codes port.CodeRepository, defaultMaxDevices int, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultMaxDevices <= 0 {
		defaultMaxDevices = domain.DefaultMaxDevices
	}
	return &AdminService{codes: codes, defaultMaxDevices: defaultMaxDevices, logger: log}
}

// ProvisionCodes generates and stores count fresh activation codes.
func (s *AdminService) ProvisionCodes(ctx context.Context, count, maxDevices int) ([]string, error) {
	if count <= 0 || count > maxBatchSize {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, maxBatchSize)
	}
	if maxDevices < 0 {
		return nil, fmt.Errorf("%w: max devices cannot be negative", ErrInvalidInput)
	}
	if maxDevices == 0 {
		maxDevices = s.defaultMaxDevices
	}

	provisioned := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := security.GenerateActivationCode(2)
		if err != nil {
			return provisioned, fmt.Errorf("generate code: %w", err)
		}

		record := domain.ActivationCode{
			Code:       code,
			Status:     domain.CodeStatusUnused,
			MaxDevices: maxDevices,
		}
		if err := s.codes.Create(ctx, record); err != nil {
			return provisioned, classify(fmt.Errorf("store code: %w", err))
		}
		provisioned = append(provisioned, code)
	}

	s.logger.Info("activation codes provisioned", zap.Int("count", len(provisioned)))
	return provisioned, nil
}

// InspectCode returns the record for a code, including its device bindings.
func (s *AdminService) InspectCode(ctx context.Context, rawCode string) (*domain.ActivationCode, error) {
	code := domain.NormalizeCode(rawCode)
	if len(code) < domain.MinCodeLength {
		return nil, fmt.Errorf("%w: code is too short", ErrInvalidInput)
	}

	record, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		s.logger.Warn("code lookup failed", zap.String("code", logger.MaskCode(code)), zap.Error(err))
		return nil, classify(fmt.Errorf("look up code: %w", err))
	}

	return record, nil
}
