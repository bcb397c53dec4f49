package port

import (
	"context"

	"github.com/zvaradi/flipgate/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishCodeActivated(ctx context.Context, event domain.CodeActivatedEvent) error
	PublishDeviceBound(ctx context.Context, event domain.DeviceBoundEvent) error
	PublishSessionCommitted(ctx context.Context, event domain.SessionCommittedEvent) error
	PublishGenerationActivated(ctx context.Context, event domain.GenerationActivatedEvent) error
}
