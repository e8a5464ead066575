package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/questa-app/questa/internal/apperror"
	"github.com/questa-app/questa/internal/metrics"
)

// keyPrefix is the Redis key prefix for session data.
const keyPrefix = "session:"

// tokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const tokenBytes = 32

// Service defines the session lifecycle contract. Mint is called exactly
// once per successful authentication; Validate is a pure read with no side
// effects; Revoke is idempotent.
type Service interface {
	Mint(ctx context.Context, input MintInput) (token string, sess *Session, err error)
	Validate(ctx context.Context, token string) (*Session, error)
	Revoke(ctx context.Context, token string) error
}

// service implements Service with Redis-backed storage and native TTLs.
type service struct {
	redis   *redis.Client
	ttl     time.Duration
	metrics *metrics.Collector
}

// NewService creates a session service with the given dependencies.
func NewService(rdb *redis.Client, ttl time.Duration, collector *metrics.Collector) Service {
	return &service{
		redis:   rdb,
		ttl:     ttl,
		metrics: collector,
	}
}

// Mint generates a random session token, stores the session data in Redis
// with the configured TTL, and returns the token. The Redis TTL and the
// embedded expires_at describe the same instant; the timestamp is what
// Validate checks, the TTL just reclaims storage.
func (s *service) Mint(ctx context.Context, input MintInput) (string, *Session, error) {
	token, err := generateToken()
	if err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("generating session token: %w", err))
	}

	now := time.Now().UTC()
	sess := &Session{
		UserID:      input.UserID,
		Username:    input.Username,
		DisplayName: input.DisplayName,
		Role:        input.Role,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
		IPAddress:   input.IPAddress,
		UserAgent:   input.UserAgent,
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("marshaling session: %w", err))
	}

	if err := s.redis.Set(ctx, keyPrefix+token, data, s.ttl).Err(); err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("storing session in Redis: %w", err))
	}

	s.metrics.RecordSessionIssued()

	slog.Info("session issued",
		slog.String("user_id", input.UserID),
		slog.String("username", input.Username),
	)

	return token, sess, nil
}

// Validate looks up a session token and returns the session data if it
// exists and hasn't expired. Expiry is a timestamp comparison at read time:
// even if Redis hasn't evicted the key yet, a session past expires_at is
// rejected.
func (s *service) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}

	data, err := s.redis.Get(ctx, keyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session from Redis: %w", err))
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}

	if !time.Now().Before(sess.ExpiresAt) {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}

	return &sess, nil
}

// Revoke removes a session from Redis, effectively logging the user out.
// Revoking an absent token is not an error.
func (s *service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.redis.Del(ctx, keyPrefix+token).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session from Redis: %w", err))
	}

	s.metrics.RecordSessionRevoked()

	return nil
}

// generateToken creates a cryptographically random hex-encoded token.
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
