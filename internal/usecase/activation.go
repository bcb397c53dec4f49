package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/infra/logger"
	"github.com/zvaradi/flipgate/internal/infra/retry"
	"github.com/zvaradi/flipgate/internal/infra/telemetry"
	"github.com/zvaradi/flipgate/internal/repository"
)

// ActivationState names the phases of the activation flow. Each phase is
// reached through exactly one operation, and the flow only ever moves forward:
// a failed step leaves the caller in its previous state.
type ActivationState string

const (
	StateUnauthenticated ActivationState = "unauthenticated"
	StateIdentityReady   ActivationState = "identity_ready"
	StateCodeValidated   ActivationState = "code_validated"
	StateDeviceBound     ActivationState = "device_bound"
	StateCommitted       ActivationState = "committed"
)

// ValidationResult is the outcome of checking a code against the decision table.
type ValidationResult struct {
	Valid            bool
	AlreadyActivated bool
	RequiresBinding  bool
	Message          string
	Record           *domain.ActivationCode
}

// BindResult reports how a device binding was persisted.
type BindResult struct {
	Record   *domain.ActivationCode
	Fallback bool
}

// ActivationConfig bounds the activation flow's remote calls.
type ActivationConfig struct {
	ValidateTimeout time.Duration
	CommitTimeout   time.Duration
	IdentityTimeout time.Duration
	IdentityRetry   retry.Policy
}

// ActivationService drives the activation flow: anonymous identity, code
// validation, transactional device binding, and session commit.
type ActivationService struct {
	codes    port.CodeRepository
	identity port.IdentityProvider
	sessions port.SessionStore
	events   port.EventPublisher
	metrics  *telemetry.ActivationMetrics
	cfg      ActivationConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewActivationService constructs an ActivationService.
func NewActivationService(
	codes port.CodeRepository,
	identity port.IdentityProvider,
	sessions port.SessionStore,
	events port.EventPublisher,
	cfg ActivationConfig,
	log *zap.Logger,
) *ActivationService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = 10 * time.Second
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 15 * time.Second
	}

	service := &ActivationService{
		codes:    codes,
		identity: identity,
		sessions: sessions,
		events:   events,
		cfg:      cfg,
		logger:   log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ActivationService) WithClock(clock func() time.Time) *ActivationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics attaches activation collectors.
func (s *ActivationService) WithMetrics(metrics *telemetry.ActivationMetrics) *ActivationService {
	s.metrics = metrics
	return s
}

// EnsureIdentity returns the existing identity when one is supplied, and
// otherwise mints a new anonymous identity with bounded retries. The call is
// idempotent: repeating it with the same user id never creates a second
// identity.
func (s *ActivationService) EnsureIdentity(ctx context.Context, existingUserID string) (domain.Identity, error) {
	if id := strings.TrimSpace(existingUserID); id != "" {
		return domain.Identity{UserID: id}, nil
	}
	if s.identity == nil {
		return domain.Identity{}, fmt.Errorf("identity provider not configured")
	}

	if s.cfg.IdentityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.IdentityTimeout)
		defer cancel()
	}

	var identity domain.Identity
	err := s.cfg.IdentityRetry.Do(ctx, func(ctx context.Context) error {
		created, err := s.identity.CreateAnonymous(ctx)
		if err != nil {
			s.logger.Warn("anonymous identity attempt failed", zap.Error(err))
			return err
		}
		identity = created
		return nil
	})
	if err != nil {
		return domain.Identity{}, classify(fmt.Errorf("create anonymous identity: %w", err))
	}

	s.logger.Info("anonymous identity created", zap.String("user_id", identity.UserID))
	return identity, nil
}

// ValidateCode evaluates the code against the decision table without writing
// anything. The lookup is bounded by the validate timeout.
func (s *ActivationService) ValidateCode(ctx context.Context, rawCode, deviceID string) (*ValidationResult, error) {
	code := domain.NormalizeCode(rawCode)
	if len(code) < domain.MinCodeLength {
		s.countValidation("invalid_format")
		return &ValidationResult{Valid: false, Message: "activation code is too short"}, nil
	}
	if strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ValidateTimeout)
	defer cancel()

	record, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countValidation("not_found")
			return &ValidationResult{Valid: false, Message: "activation code not found"}, nil
		}
		s.countValidation("error")
		return nil, classify(fmt.Errorf("look up code: %w", err))
	}

	if !record.IsUsable() {
		s.countValidation("not_usable")
		return &ValidationResult{Valid: false, Message: "activation code is no longer usable"}, nil
	}

	// A device that already redeemed this code skips binding entirely.
	if record.HasDevice(deviceID) {
		s.countValidation("already_activated")
		return &ValidationResult{
			Valid:            true,
			AlreadyActivated: true,
			Message:          "device already activated",
			Record:           record,
		}, nil
	}

	if record.AtCapacity() {
		s.countValidation("at_capacity")
		return &ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("maximum of %d devices reached", record.EffectiveMaxDevices()),
			Record:  record,
		}, nil
	}

	s.countValidation("valid")
	return &ValidationResult{Valid: true, RequiresBinding: true, Record: record}, nil
}

// BindDevice persists the binding transactionally, re-validating against a
// fresh read inside the transaction. When the transaction primitive is
// unavailable the binding falls back to a read-modify-write path that keeps
// activation working at the cost of strict atomicity.
func (s *ActivationService) BindDevice(ctx context.Context, rawCode, deviceID, userAgent, platform string) (*BindResult, error) {
	code := domain.NormalizeCode(rawCode)
	if len(code) < domain.MinCodeLength || strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("%w: code and device id are required", ErrInvalidInput)
	}

	info := domain.DetectDeviceInfo(userAgent, platform)
	binding := domain.DeviceBinding{
		DeviceID:   deviceID,
		DeviceType: info.Type(),
		UserAgent:  info.UserAgent,
	}

	record, err := s.codes.BindDevice(ctx, code, binding)
	switch {
	case err == nil:
		s.countBinding("transactional")
		s.publishBound(ctx, code, binding, record)
		return &BindResult{Record: record}, nil
	case errors.Is(err, repository.ErrTransactionUnavailable):
		s.logger.Warn("bind transaction unavailable, using fallback path",
			zap.String("code", logger.MaskCode(code)),
			zap.Error(err))
	default:
		return nil, classify(fmt.Errorf("bind device: %w", err))
	}

	record, err = s.bindFallback(ctx, code, binding)
	if err != nil {
		return nil, err
	}

	s.countBinding("fallback")
	s.publishBound(ctx, code, binding, record)
	return &BindResult{Record: record, Fallback: true}, nil
}

// bindFallback performs the non-transactional read-modify-write. Duplicate and
// capacity checks run against the read copy only.
func (s *ActivationService) bindFallback(ctx context.Context, code string, binding domain.DeviceBinding) (*domain.ActivationCode, error) {
	record, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		return nil, classify(fmt.Errorf("fallback read: %w", err))
	}
	if !record.IsUsable() {
		return nil, ErrPermissionDenied
	}
	if record.HasDevice(binding.DeviceID) {
		return record, nil
	}
	if record.AtCapacity() {
		return nil, ErrCapacityExceeded
	}

	record.Bind(binding, s.now())

	if err := s.codes.UpdateDevices(ctx, code, record.Devices, record.Status); err != nil {
		return nil, classify(fmt.Errorf("fallback write: %w", err))
	}

	return record, nil
}

// CommitSession persists the durable session for the user. Identity token
// issuance is best effort: when it fails the session is still committed in a
// degraded form carrying the failure reason instead of a token.
func (s *ActivationService) CommitSession(ctx context.Context, userID, userAgent, platform string) (*domain.ReaderSession, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommitTimeout)
	defer cancel()

	session := domain.ReaderSession{
		UserID:     userID,
		CreatedAt:  s.now(),
		DeviceInfo: domain.DetectDeviceInfo(userAgent, platform),
	}

	token, err := s.identity.IssueIdentityToken(ctx, userID)
	if err != nil {
		s.logger.Warn("identity token issuance failed, committing degraded session",
			zap.String("user_id", userID),
			zap.Error(err))
		session.Fallback = true
		session.FallbackError = err.Error()
	} else {
		session.Token = token
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: save session: %w", ErrStorageUnavailable, err)
	}

	s.publishCommitted(ctx, session)

	s.logger.Info("session committed",
		zap.String("user_id", userID),
		zap.Bool("fallback", session.Fallback))

	return &session, nil
}

// Session returns the committed session for the user.
func (s *ActivationService) Session(ctx context.Context, userID string) (*domain.ReaderSession, error) {
	session, err := s.sessions.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotActivated
		}
		return nil, classify(fmt.Errorf("load session: %w", err))
	}
	return session, nil
}

// SignOut removes the durable session.
func (s *ActivationService) SignOut(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return classify(fmt.Errorf("delete session: %w", err))
	}
	s.logger.Info("session removed", zap.String("user_id", userID))
	return nil
}

// StateFor derives the caller's activation state from what has been persisted.
func (s *ActivationService) StateFor(ctx context.Context, userID string) ActivationState {
	if strings.TrimSpace(userID) == "" {
		return StateUnauthenticated
	}

	session, err := s.sessions.Load(ctx, userID)
	if err != nil {
		return StateIdentityReady
	}
	if session.IsAuthenticated() {
		return StateCommitted
	}
	return StateIdentityReady
}

func (s *ActivationService) publishBound(ctx context.Context, code string, binding domain.DeviceBinding, record *domain.ActivationCode) {
	if s.events == nil || record == nil {
		return
	}

	at := s.now()
	if err := s.events.PublishDeviceBound(ctx, domain.DeviceBoundEvent{
		EventID:    uuid.NewString(),
		Code:       code,
		DeviceID:   binding.DeviceID,
		DeviceType: binding.DeviceType,
		UserAgent:  binding.UserAgent,
		BoundAt:    at,
	}); err != nil {
		s.logger.Warn("publish device bound event failed", zap.Error(err))
	}

	// First binding is what flips the code active.
	if len(record.Devices) == 1 {
		if err := s.events.PublishCodeActivated(ctx, domain.CodeActivatedEvent{
			EventID:     uuid.NewString(),
			Code:        code,
			DeviceCount: len(record.Devices),
			ActivatedAt: at,
		}); err != nil {
			s.logger.Warn("publish code activated event failed", zap.Error(err))
		}
	}
}

func (s *ActivationService) publishCommitted(ctx context.Context, session domain.ReaderSession) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSessionCommitted(ctx, domain.SessionCommittedEvent{
		EventID:     uuid.NewString(),
		UserID:      session.UserID,
		Fallback:    session.Fallback,
		CommittedAt: session.CreatedAt,
	}); err != nil {
		s.logger.Warn("publish session committed event failed", zap.Error(err))
	}
}

func (s *ActivationService) countValidation(result string) {
	if s.metrics != nil {
		s.metrics.Validations.WithLabelValues(result).Inc()
	}
}

func (s *ActivationService) countBinding(path string) {
	if s.metrics != nil {
		s.metrics.Bindings.WithLabelValues(path).Inc()
	}
}
