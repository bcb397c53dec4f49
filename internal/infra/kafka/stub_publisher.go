package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishCodeActivated logs code.activated events.
func (p *StubPublisher) PublishCodeActivated(_ context.Context, event domain.CodeActivatedEvent) error {
	payload := map[string]any{
		"code":         event.Code,
		"device_count": event.DeviceCount,
	}
	p.logEvent("code.activated", event.UserID, event.ActivatedAt, payload)
	return nil
}

// PublishDeviceBound logs device.bound events.
func (p *StubPublisher) PublishDeviceBound(_ context.Context, event domain.DeviceBoundEvent) error {
	payload := map[string]any{
		"code":        event.Code,
		"device_type": event.DeviceType,
	}
	p.logEvent("device.bound", event.DeviceID, event.BoundAt, payload)
	return nil
}

// PublishSessionCommitted logs session.committed events.
func (p *StubPublisher) PublishSessionCommitted(_ context.Context, event domain.SessionCommittedEvent) error {
	payload := map[string]any{
		"fallback": event.Fallback,
	}
	p.logEvent("session.committed", event.UserID, event.CommittedAt, payload)
	return nil
}

// PublishGenerationActivated logs cache.generation.activated events.
func (p *StubPublisher) PublishGenerationActivated(_ context.Context, event domain.GenerationActivatedEvent) error {
	payload := map[string]any{
		"generation":    event.Generation,
		"assets_cached": event.AssetsCached,
		"shell_broken":  event.ShellBroken,
	}
	p.logEvent("cache.generation.activated", "", event.ActivatedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
