package domain

import "time"

// AccessTokenTTL is the validity window of a capability token.
// Expiry is always exactly this far past issuance.
const AccessTokenTTL = 30 * time.Minute

// AccessToken is a locally computed capability marker gating content fetches.
// It is not a server-verifiable credential; it only asserts the holder is an
// authenticated session.
type AccessToken struct {
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Value     string    `json:"value"`
}

// IsValid reports whether the token exists and has not expired at the supplied moment.
func (t AccessToken) IsValid(at time.Time) bool {
	if t.Value == "" {
		return false
	}
	return t.ExpiresAt.After(at)
}

// Fragment returns a truncated token prefix safe for diagnostics.
func (t AccessToken) Fragment() string {
	if len(t.Value) <= 8 {
		return t.Value
	}
	return t.Value[:8]
}
