package port

import (
	"context"

	"github.com/zvaradi/flipgate/internal/core/domain"
)

// IdentityProvider issues anonymous per-device identities and identity tokens.
type IdentityProvider interface {
	// CreateAnonymous mints a new anonymous identity.
	CreateAnonymous(ctx context.Context) (domain.Identity, error)

	// IssueIdentityToken returns a signed identity token for the user.
	IssueIdentityToken(ctx context.Context, userID string) (string, error)
}

// TokenDeriver computes a capability token value from its inputs.
// Implementations are deliberately swappable: the default mixer is not
// cryptographically verifiable, while the HMAC deriver produces a keyed value.
type TokenDeriver interface {
	Derive(userID string, issuedAt int64, host string) string
}
