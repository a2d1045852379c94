package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	dErrors "portico/pkg/domain-errors"
)

// ExistsFunc probes whether a candidate token is already persisted anywhere
// tokens of its kind are stored.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

const (
	tokenBytes  = 64
	maxAttempts = 5
)

// Generator produces opaque random tokens that are unique across the
// persisted token set. Refresh, verification and reset tokens share this one
// contract: 64 bytes of secure randomness, hex-encoded, regenerated on
// collision with a bounded retry.
type Generator struct {
	exists ExistsFunc
}

// NewGenerator constructs a Generator with the given uniqueness probe.
func NewGenerator(exists ExistsFunc) *Generator {
	return &Generator{exists: exists}
}

// Generate returns a fresh token not previously seen by the exists probe.
// Collision probability is negligible at this entropy, but the loop still
// terminates: after maxAttempts the persistent uniqueness failure is
// surfaced as an internal error rather than recursing unbounded.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		buf := make([]byte, tokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate random token")
		}
		candidate := hex.EncodeToString(buf)

		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "token uniqueness check failed")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", dErrors.New(dErrors.CodeInternal, "token generation exhausted retries")
}
