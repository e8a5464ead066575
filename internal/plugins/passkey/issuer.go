package passkey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/questa-app/questa/internal/apperror"
)

// challengeBytes is the number of random bytes in a challenge value.
// 32 bytes = 256 bits of entropy, base64url-encoded to 43 characters.
// Collisions are treated as negligible at this size and not handled.
const challengeBytes = 32

// ChallengeIssuer produces fresh, unpredictable challenges and persists
// them for a bounded window. Both ceremonies issue through it.
type ChallengeIssuer struct {
	repo Repository
	ttl  time.Duration
}

// NewChallengeIssuer creates an issuer writing through the given repository
// with the given challenge TTL.
func NewChallengeIssuer(repo Repository, ttl time.Duration) *ChallengeIssuer {
	return &ChallengeIssuer{repo: repo, ttl: ttl}
}

// Issue generates a random challenge value, persists it bound to the user
// with the configured expiry, and returns the stored challenge.
func (i *ChallengeIssuer) Issue(ctx context.Context, kind ChallengeKind, userID string) (*Challenge, error) {
	value, err := generateChallengeValue()
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating challenge: %w", err))
	}

	now := time.Now().UTC()
	ch := &Challenge{
		ID:        uuid.NewString(),
		Value:     value,
		UserID:    userID,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
	}

	if err := i.repo.CreateChallenge(ctx, ch); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("storing challenge: %w", err))
	}

	return ch, nil
}

// TTL returns the configured challenge lifetime. The handlers embed it
// (in milliseconds) as the ceremony timeout hint.
func (i *ChallengeIssuer) TTL() time.Duration {
	return i.ttl
}

// generateChallengeValue creates a cryptographically random URL-safe string.
func generateChallengeValue() (string, error) {
	b := make([]byte, challengeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
