package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/infra/config"
)

// AnonymousProvider issues anonymous per-device identities together with
// short-lived HS256 identity tokens.
type AnonymousProvider struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewAnonymousProvider constructs the built-in identity provider.
func NewAnonymousProvider(cfg config.IdentitySettings, issuer string, logger *zap.Logger) (*AnonymousProvider, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("identity secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &AnonymousProvider{
		secret:   []byte(cfg.Secret),
		issuer:   issuer,
		tokenTTL: ttl,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// WithClock injects a custom clock, primarily for tests.
func (p *AnonymousProvider) WithClock(now func() time.Time) *AnonymousProvider {
	if now != nil {
		p.now = now
	}
	return p
}

// CreateAnonymous mints a fresh anonymous identity.
func (p *AnonymousProvider) CreateAnonymous(ctx context.Context) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}

	id := domain.Identity{
		UserID:    uuid.NewString(),
		CreatedAt: p.now().UTC(),
	}

	p.logger.Debug("anonymous identity created", zap.String("user_id", id.UserID))
	return id, nil
}

// IssueIdentityToken returns a signed HS256 token for the identity.
func (p *AnonymousProvider) IssueIdentityToken(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := p.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign identity token: %w", err)
	}

	return signed, nil
}

// ParseIdentityToken validates an identity token and returns the subject.
func (p *AnonymousProvider) ParseIdentityToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return p.now() }))
	if err != nil {
		return "", fmt.Errorf("parse identity token: %w", err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("identity token missing subject")
	}

	return claims.Subject, nil
}

var _ port.IdentityProvider = (*AnonymousProvider)(nil)
