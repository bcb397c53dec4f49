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

const defaultTokenPrefix = "token"

// TokenRepository persists capability tokens in Redis. Each entry carries a
// TTL matching the token's remaining validity, so expired tokens vanish on
// their own.
type TokenRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewTokenRepository constructs a token store with the provided key prefix.
func NewTokenRepository(client *red.Client, keyPrefix string) *TokenRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultTokenPrefix
	}

	return &TokenRepository{client: client, prefix: prefix, now: time.Now}
}

// WithClock overrides the internal clock, used in tests.
func (r *TokenRepository) WithClock(clock func() time.Time) *TokenRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Save writes the token with a TTL equal to its remaining validity.
func (r *TokenRepository) Save(ctx context.Context, token domain.AccessToken) error {
	if strings.TrimSpace(token.UserID) == "" {
		return errors.New("token user id is required")
	}

	ttl := token.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("token already expired")
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	if err := r.client.Set(ctx, r.key(token.UserID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}

	return nil
}

// Load returns the stored token for the user.
func (r *TokenRepository) Load(ctx context.Context, userID string) (*domain.AccessToken, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get token: %w", err)
	}

	var token domain.AccessToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}

	return &token, nil
}

// Delete removes the stored token.
func (r *TokenRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete token: %w", err)
	}
	return nil
}

func (r *TokenRepository) key(userID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, userID)
}

var _ port.TokenStore = (*TokenRepository)(nil)
