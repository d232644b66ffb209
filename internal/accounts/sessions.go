package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

const sessionAudience = "session"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("session revoked")
)

// Revocations is the denylist of logged-out session IDs.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// sessionClaims holds the session JWT claims.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret  []byte
	ttl     time.Duration
	revoked Revocations
	now     func() time.Time
}

// NewSessions creates a session service.
func NewSessions(secret string, expireHours int, revoked Revocations) *Sessions {
	return &Sessions{
		secret:  []byte(secret),
		ttl:     time.Duration(expireHours) * time.Hour,
		revoked: revoked,
		now:     time.Now,
	}
}

// TTL is the lifetime of a session token.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue creates a new session token for the user.
func (s *Sessions) Issue(userID idx.ID) (string, models.Session, error) {
	now := s.now()
	sess := models.Session{
		UserID:    userID,
		TokenID:   uuid.New().String(),
		ExpiresAt: now.Add(s.ttl).Truncate(time.Second),
	}
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        sess.TokenID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", models.Session{}, fmt.Errorf("sign session: %w", err)
	}
	return token, sess, nil
}

// Verify parses a session token and rejects revoked ones.
func (s *Sessions) Verify(ctx context.Context, token string) (models.Session, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return models.Session{}, ErrInvalidToken
	}
	userID, err := idx.Parse(claims.Subject)
	if err != nil {
		return models.Session{}, ErrInvalidToken
	}
	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return models.Session{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return models.Session{}, ErrRevoked
		}
	}
	return models.Session{UserID: userID, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Revoke denylists the session until it would have expired anyway.
func (s *Sessions) Revoke(ctx context.Context, sess models.Session) error {
	if s.revoked == nil {
		return nil
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revoked.Revoke(ctx, sess.TokenID, ttl)
}

// RedisRevocations stores revoked session IDs in Redis with an expiry.
type RedisRevocations struct {
	client *redis.Client
}

// NewRedisRevocations creates a Redis-backed denylist.
func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client}
}

func revocationKey(tokenID string) string { return "session:revoked:" + tokenID }

// Revoke adds tokenID to the denylist for ttl.
func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, revocationKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID is denylisted.
func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revocationKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}
