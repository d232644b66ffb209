package accounts

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

type memRevocations struct {
	mu  sync.Mutex
	ids map[string]time.Duration
}

func (m *memRevocations) Revoke(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids == nil {
		m.ids = map[string]time.Duration{}
	}
	m.ids[id] = ttl
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok, nil
}

func newUser() *models.User {
	return &models.User{ID: idx.New(), Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
}

func TestActivationTokens(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens := NewActivationTokens("activation-secret", 72)
	tokens.now = func() time.Time { return now }

	u := newUser()
	token, err := tokens.Make(u)
	require.NoError(t, err)
	require.NoError(t, tokens.Check(u, token))

	t.Run("expired", func(t *testing.T) {
		late := *tokens
		late.now = func() time.Time { return now.Add(73 * time.Hour) }
		assert.ErrorIs(t, late.Check(u, token), ErrInvalidToken)
	})

	t.Run("tampered", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		assert.ErrorIs(t, tokens.Check(u, parts[0]+"."+parts[1]+"."+string(sig)), ErrInvalidToken)
		assert.ErrorIs(t, tokens.Check(u, "garbage"), ErrInvalidToken)
	})

	t.Run("other user", func(t *testing.T) {
		other := newUser()
		other.PasswordHash = u.PasswordHash
		assert.ErrorIs(t, tokens.Check(other, token), ErrInvalidToken)
	})

	t.Run("state changes invalidate", func(t *testing.T) {
		activated := *u
		activated.IsActive = true
		assert.ErrorIs(t, tokens.Check(&activated, token), ErrInvalidToken)

		loggedIn := *u
		at := now.Add(time.Minute)
		loggedIn.LastLogin = &at
		assert.ErrorIs(t, tokens.Check(&loggedIn, token), ErrInvalidToken)

		rehashed := *u
		rehashed.PasswordHash = "other"
		assert.ErrorIs(t, tokens.Check(&rehashed, token), ErrInvalidToken)
	})

	t.Run("session token is not an activation token", func(t *testing.T) {
		sessions := NewSessions("activation-secret", 1, nil)
		sessions.now = tokens.now
		sessionToken, _, err := sessions.Issue(u.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, tokens.Check(u, sessionToken), ErrInvalidToken)
	})
}

func TestUIDRoundTrip(t *testing.T) {
	t.Parallel()
	id := idx.New()
	enc := EncodeUID(id)
	assert.NotContains(t, enc, "=")
	got, err := DecodeUID(enc)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = DecodeUID("%%%")
	assert.Error(t, err)
	_, err = DecodeUID(EncodeUID("not-an-id"))
	assert.Error(t, err)
}

func TestSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rev := &memRevocations{}
	sessions := NewSessions("session-secret", 24, rev)
	sessions.now = func() time.Time { return now }

	uid := idx.New()
	token, issued, err := sessions.Issue(uid)
	require.NoError(t, err)

	sess, err := sessions.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uid, sess.UserID)
	assert.Equal(t, issued.TokenID, sess.TokenID)
	assert.True(t, issued.ExpiresAt.Equal(sess.ExpiresAt))

	other := NewSessions("another-secret", 24, rev)
	_, err = other.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewSessions("session-secret", 24, rev)
	later.now = func() time.Time { return now.Add(25 * time.Hour) }
	_, err = later.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, sessions.Revoke(ctx, sess))
	assert.Equal(t, 24*time.Hour, rev.ids[sess.TokenID])
	_, err = sessions.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrRevoked)
}
