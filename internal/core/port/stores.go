package port

import (
	"context"

	"github.com/zvaradi/flipgate/internal/core/domain"
)

// SessionStore persists reader sessions keyed by user id.
type SessionStore interface {
	Save(ctx context.Context, session domain.ReaderSession) error
	Load(ctx context.Context, userID string) (*domain.ReaderSession, error)
	Delete(ctx context.Context, userID string) error
}

// TokenStore persists capability tokens keyed by user id.
type TokenStore interface {
	Save(ctx context.Context, token domain.AccessToken) error
	Load(ctx context.Context, userID string) (*domain.AccessToken, error)
	Delete(ctx context.Context, userID string) error
}
