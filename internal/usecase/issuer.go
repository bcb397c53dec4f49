package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/repository"
)

// TokenIssuer mints and caches capability tokens. Tokens are derived locally
// from the user id, issuance time and host; they are capability markers, not
// verifiable credentials, and the deriver behind the port is swappable.
type TokenIssuer struct {
	deriver port.TokenDeriver
	store   port.TokenStore
	host    string
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. A zero ttl falls back to the
// standard validity window.
func NewTokenIssuer(deriver port.TokenDeriver, store port.TokenStore, host string, ttl time.Duration, log *zap.Logger) *TokenIssuer {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = domain.AccessTokenTTL
	}

	issuer := &TokenIssuer{
		deriver: deriver,
		store:   store,
		host:    host,
		ttl:     ttl,
		logger:  log,
	}
	issuer.now = func() time.Time { return time.Now().UTC() }
	return issuer
}

// WithClock overrides the internal clock for deterministic tests.
func (i *TokenIssuer) WithClock(clock func() time.Time) *TokenIssuer {
	if clock != nil {
		i.now = clock
	}
	return i
}

// GetToken returns a valid token for the user, reusing the stored one while
// it remains valid and minting a replacement otherwise.
func (i *TokenIssuer) GetToken(ctx context.Context, userID string) (*domain.AccessToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	current, err := i.Current(ctx, userID)
	if err == nil && current != nil {
		return current, nil
	}

	return i.Refresh(ctx, userID)
}

// Refresh unconditionally mints a fresh token. Storage failure degrades
// rather than fails: the minted token is returned even when it could not be
// persisted, so a broken store never blocks reading.
func (i *TokenIssuer) Refresh(ctx context.Context, userID string) (*domain.AccessToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if i.deriver == nil {
		return nil, fmt.Errorf("token deriver not configured")
	}

	issued := i.now()
	token := domain.AccessToken{
		UserID:    userID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(i.ttl),
		Value:     i.deriver.Derive(userID, issued.Unix(), i.host),
	}

	if i.store != nil {
		if err := i.store.Save(ctx, token); err != nil {
			i.logger.Warn("token store write failed, serving unpersisted token",
				zap.String("user_id", userID),
				zap.String("token", token.Fragment()),
				zap.Error(err))
		}
	}

	return &token, nil
}

// Current returns the stored token if it is still valid, and nil otherwise.
func (i *TokenIssuer) Current(ctx context.Context, userID string) (*domain.AccessToken, error) {
	if i.store == nil {
		return nil, nil
	}

	token, err := i.store.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("load token: %w", err))
	}

	if !token.IsValid(i.now()) {
		return nil, nil
	}

	return token, nil
}

// IsTokenValid reports whether the supplied token value matches a stored,
// unexpired token for the user.
func (i *TokenIssuer) IsTokenValid(ctx context.Context, userID, value string) bool {
	if value == "" {
		return false
	}

	token, err := i.Current(ctx, userID)
	if err != nil || token == nil {
		return false
	}

	return token.Value == value
}

// Revoke removes the stored token for the user.
func (i *TokenIssuer) Revoke(ctx context.Context, userID string) error {
	if i.store == nil {
		return nil
	}
	if err := i.store.Delete(ctx, userID); err != nil {
		return classify(fmt.Errorf("delete token: %w", err))
	}
	return nil
}
