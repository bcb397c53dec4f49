package security

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateActivationCode returns a random code of the form XXXX-XXXX-XXXX-XXXX
// using an alphabet without easily confused characters.
func GenerateActivationCode(groups int) (string, error) {
	if groups <= 0 {
		return "", fmt.Errorf("groups must be positive")
	}

	buf := make([]byte, groups*4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	parts := make([]string, 0, groups)
	for g := 0; g < groups; g++ {
		var b strings.Builder
		for i := 0; i < 4; i++ {
			b.WriteByte(codeAlphabet[int(buf[g*4+i])%len(codeAlphabet)])
		}
		parts = append(parts, b.String())
	}

	return strings.Join(parts, "-"), nil
}
