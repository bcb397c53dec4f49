package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/repository"
)

const defaultSessionPrefix = "session"

// SessionRepository persists reader sessions as JSON values in Redis.
type SessionRepository struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewSessionRepository constructs a session store. A zero TTL keeps sessions
// until they are explicitly deleted.
func NewSessionRepository(client *red.Client, keyPrefix string, ttl time.Duration) *SessionRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}

	return &SessionRepository{client: client, prefix: prefix, ttl: ttl}
}

// Save writes the session record, replacing any previous one for the user.
func (r *SessionRepository) Save(ctx context.Context, session domain.ReaderSession) error {
	if strings.TrimSpace(session.UserID) == "" {
		return errors.New("session user id is required")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(session.UserID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}

	return nil
}

// Load returns the stored session for the user.
func (r *SessionRepository) Load(ctx context.Context, userID string) (*domain.ReaderSession, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.ReaderSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &session, nil
}

// Delete removes the session record.
func (r *SessionRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) key(userID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, userID)
}

var _ port.SessionStore = (*SessionRepository)(nil)
