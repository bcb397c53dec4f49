package identity

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/infra/config"
)

func newTestProvider(t *testing.T) *AnonymousProvider {
	t.Helper()

	provider, err := NewAnonymousProvider(config.IdentitySettings{
		Secret:   "test-secret",
		TokenTTL: time.Hour,
	}, "flipgate-test", zap.NewNop())
	if err != nil {
		t.Fatalf("NewAnonymousProvider: %v", err)
	}
	return provider
}

func TestAnonymousProvider_CreateAnonymous(t *testing.T) {
	provider := newTestProvider(t)

	first, err := provider.CreateAnonymous(context.Background())
	if err != nil {
		t.Fatalf("CreateAnonymous: %v", err)
	}
	if first.UserID == "" {
		t.Fatalf("expected non-empty user id")
	}

	second, err := provider.CreateAnonymous(context.Background())
	if err != nil {
		t.Fatalf("CreateAnonymous: %v", err)
	}
	if first.UserID == second.UserID {
		t.Fatalf("expected distinct identities")
	}
}

func TestAnonymousProvider_TokenRoundTrip(t *testing.T) {
	provider := newTestProvider(t)

	token, err := provider.IssueIdentityToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssueIdentityToken: %v", err)
	}

	subject, err := provider.ParseIdentityToken(token)
	if err != nil {
		t.Fatalf("ParseIdentityToken: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", subject)
	}
}

func TestAnonymousProvider_RejectsExpiredToken(t *testing.T) {
	provider := newTestProvider(t)

	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	provider.WithClock(func() time.Time { return issued })

	token, err := provider.IssueIdentityToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssueIdentityToken: %v", err)
	}

	provider.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	if _, err := provider.ParseIdentityToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestAnonymousProvider_RequiresSecret(t *testing.T) {
	if _, err := NewAnonymousProvider(config.IdentitySettings{}, "flipgate", zap.NewNop()); err == nil {
		t.Fatalf("expected missing secret to be rejected")
	}
}

func TestAnonymousProvider_CancelledContext(t *testing.T) {
	provider := newTestProvider(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := provider.CreateAnonymous(ctx); err == nil {
		t.Fatalf("expected cancelled context to fail")
	}
}
