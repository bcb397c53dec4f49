package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishCodeActivated emits flipgate.code.activated messages.
func (p *EventPublisher) PublishCodeActivated(ctx context.Context, event domain.CodeActivatedEvent) error {
	payload := map[string]any{
		"code":         event.Code,
		"user_id":      event.UserID,
		"device_count": event.DeviceCount,
		"activated_at": event.ActivatedAt,
		"metadata":     event.Metadata,
	}
	return p.publish(ctx, event.EventID, "code.activated", event.UserID, event.ActivatedAt, payload)
}

// PublishDeviceBound emits flipgate.device.bound messages.
func (p *EventPublisher) PublishDeviceBound(ctx context.Context, event domain.DeviceBoundEvent) error {
	payload := map[string]any{
		"code":        event.Code,
		"device_id":   event.DeviceID,
		"device_type": event.DeviceType,
		"user_agent":  event.UserAgent,
		"bound_at":    event.BoundAt,
		"metadata":    event.Metadata,
	}
	return p.publish(ctx, event.EventID, "device.bound", event.DeviceID, event.BoundAt, payload)
}

// PublishSessionCommitted emits flipgate.session.committed messages.
func (p *EventPublisher) PublishSessionCommitted(ctx context.Context, event domain.SessionCommittedEvent) error {
	payload := map[string]any{
		"user_id":      event.UserID,
		"fallback":     event.Fallback,
		"committed_at": event.CommittedAt,
		"metadata":     event.Metadata,
	}
	return p.publish(ctx, event.EventID, "session.committed", event.UserID, event.CommittedAt, payload)
}

// PublishGenerationActivated emits flipgate.cache.generation.activated messages.
func (p *EventPublisher) PublishGenerationActivated(ctx context.Context, event domain.GenerationActivatedEvent) error {
	payload := map[string]any{
		"generation":    event.Generation,
		"version":       event.Version,
		"assets_cached": event.AssetsCached,
		"shell_broken":  event.ShellBroken,
		"activated_at":  event.ActivatedAt,
		"metadata":      event.Metadata,
	}
	return p.publish(ctx, event.EventID, "cache.generation.activated", "", event.ActivatedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
