package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"

	"github.com/zvaradi/flipgate/internal/core/port"
)

// MixDeriver computes capability tokens with a non-cryptographic mixing
// function. The value is deterministic over {userID, issuance, host} and is
// forgeable by anyone who knows the scheme: it prevents casual direct access
// to content URLs and must not be treated as an authorization boundary.
type MixDeriver struct{}

// NewMixDeriver constructs the default, non-cryptographic deriver.
func NewMixDeriver() *MixDeriver {
	return &MixDeriver{}
}

// Derive mixes the inputs through two FNV-1a passes.
func (d *MixDeriver) Derive(userID string, issuedAt int64, host string) string {
	seed := fmt.Sprintf("%s|%d|%s", userID, issuedAt, host)

	forward := fnv.New64a()
	_, _ = forward.Write([]byte(seed))

	backward := fnv.New64a()
	for i := len(seed) - 1; i >= 0; i-- {
		_, _ = backward.Write([]byte{seed[i]})
	}

	return fmt.Sprintf("%016x%016x", forward.Sum64(), backward.Sum64())
}

// HMACDeriver computes keyed capability tokens. Drop-in replacement for the
// mixer at every call site; selected via token.deriver=hmac.
type HMACDeriver struct {
	secret []byte
}

// NewHMACDeriver constructs a deriver keyed with the supplied secret.
func NewHMACDeriver(secret string) (*HMACDeriver, error) {
	if secret == "" {
		return nil, fmt.Errorf("hmac deriver secret is required")
	}
	return &HMACDeriver{secret: []byte(secret)}, nil
}

// Derive returns the hex-encoded HMAC-SHA256 over the token inputs.
func (d *HMACDeriver) Derive(userID string, issuedAt int64, host string) string {
	mac := hmac.New(sha256.New, d.secret)
	fmt.Fprintf(mac, "%s|%d|%s", userID, issuedAt, host)
	return hex.EncodeToString(mac.Sum(nil))
}

var (
	_ port.TokenDeriver = (*MixDeriver)(nil)
	_ port.TokenDeriver = (*HMACDeriver)(nil)
)
