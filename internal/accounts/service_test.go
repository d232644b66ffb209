package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/mailer"
	"github.com/roomledger/backend/internal/storetest"
	"github.com/roomledger/backend/pkg/idx"
)

type outbox struct {
	mu     sync.Mutex
	err    error
	queued bool
	// seen runs on every dispatch, before err is returned.
	seen func()
	sent []mailer.Message
}

func (o *outbox) Dispatch(_ context.Context, _ *idx.ID, _ string, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen != nil {
		o.seen()
	}
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) Queued() bool { return o.queued }

// link returns the uid and token of the only activation email sent.
func (o *outbox) link(t *testing.T) (string, string) {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.Len(t, o.sent, 1)
	text := o.sent[0].Text
	start := strings.Index(text, "https://rooms.example.com/activate/")
	require.GreaterOrEqual(t, start, 0)
	link := strings.Fields(text[start:])[0]
	parts := strings.Split(strings.TrimPrefix(link, "https://rooms.example.com/activate/"), "/")
	require.Len(t, parts, 3)
	require.Empty(t, parts[2], "link ends with a slash")
	return parts[0], parts[1]
}

func newService(t *testing.T, opts Options) (*Service, *storetest.Memory, *outbox) {
	t.Helper()
	store := storetest.New()
	box := &outbox{}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://rooms.example.com/"
	}
	svc := NewService(store, box, NewActivationTokens("act", 72), NewSessions("sess", 24, &memRevocations{}), opts, nil)
	return svc, store, box
}

var valid = RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correct horse"}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, box := newService(t, Options{})

	cases := map[string]RegisterInput{
		"missing username": {Email: valid.Email, Password: valid.Password},
		"missing email":    {Username: valid.Username, Password: valid.Password},
		"missing password": {Username: valid.Username, Email: valid.Email},
		"bad email":        {Username: valid.Username, Email: "not-an-email", Password: valid.Password},
		"short password":   {Username: valid.Username, Email: valid.Email, Password: "1234567"},
		"long username":    {Username: strings.Repeat("u", 151), Email: valid.Email, Password: valid.Password},
	}
	for name, in := range cases {
		_, err := svc.Register(ctx, in)
		assert.ErrorIs(t, err, apperr.ErrValidation, name)
	}
	assert.Empty(t, box.sent)
}

func TestRegisterConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newService(t, Options{})

	_, err := svc.Register(ctx, valid)
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: valid.Password})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "ALICE@example.com", Password: valid.Password})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegisterCreatesInactiveUserAndSendsLink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, box := newService(t, Options{})

	user, err := svc.Register(ctx, valid)
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.NotEqual(t, valid.Password, user.PasswordHash)

	stored, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	require.Len(t, box.sent, 1)
	assert.Equal(t, valid.Email, box.sent[0].To)
	uid, _ := box.link(t)
	assert.Equal(t, EncodeUID(user.ID), uid)
}

func TestRegisterMailFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rolls the user back", func(t *testing.T) {
		svc, store, box := newService(t, Options{})
		box.err = errors.New("smtp unreachable")

		_, err := svc.Register(ctx, valid)
		require.Error(t, err)
		exists, err := store.UsernameExists(ctx, valid.Username)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("fail silently keeps the user", func(t *testing.T) {
		svc, store, box := newService(t, Options{FailSilently: true})
		box.err = errors.New("smtp unreachable")

		_, err := svc.Register(ctx, valid)
		require.NoError(t, err)
		exists, err := store.UsernameExists(ctx, valid.Username)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestRegisterQueuedMail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	committed := func(store *storetest.Memory, box *outbox) *bool {
		var ok bool
		box.seen = func() {
			ok, _ = store.UsernameExists(ctx, valid.Username)
		}
		return &ok
	}

	t.Run("inline mail is sent inside the insert", func(t *testing.T) {
		svc, store, box := newService(t, Options{})
		visible := committed(store, box)

		_, err := svc.Register(ctx, valid)
		require.NoError(t, err)
		assert.False(t, *visible)
	})

	t.Run("queued mail is enqueued after the commit", func(t *testing.T) {
		svc, store, box := newService(t, Options{})
		box.queued = true
		visible := committed(store, box)

		_, err := svc.Register(ctx, valid)
		require.NoError(t, err)
		assert.True(t, *visible)
		uid, token := box.link(t)

		_, _, err = svc.Activate(ctx, uid, token)
		require.NoError(t, err)
	})

	t.Run("failed enqueue removes the user", func(t *testing.T) {
		svc, store, box := newService(t, Options{})
		box.queued = true
		box.err = errors.New("redis down")

		_, err := svc.Register(ctx, valid)
		require.Error(t, err)
		exists, err := store.UsernameExists(ctx, valid.Username)
		require.NoError(t, err)
		assert.False(t, exists)

		box.err = nil
		_, err = svc.Register(ctx, valid)
		require.NoError(t, err, "the username is free again")
	})

	t.Run("failed enqueue with fail silently keeps the user", func(t *testing.T) {
		svc, store, box := newService(t, Options{FailSilently: true})
		box.queued = true
		box.err = errors.New("redis down")

		_, err := svc.Register(ctx, valid)
		require.NoError(t, err)
		exists, err := store.UsernameExists(ctx, valid.Username)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestActivate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, box := newService(t, Options{})

	user, err := svc.Register(ctx, valid)
	require.NoError(t, err)
	uid, token := box.link(t)

	t.Run("bad inputs fail without side effects", func(t *testing.T) {
		for _, c := range [][2]string{
			{"!!", token},
			{EncodeUID(idx.New()), token},
			{uid, token + "x"},
			{uid, "garbage"},
		} {
			_, _, err := svc.Activate(ctx, c[0], c[1])
			assert.ErrorIs(t, err, apperr.ErrActivation)
		}
		u, err := store.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, u.IsActive)
	})

	session, activated, err := svc.Activate(ctx, uid, token)
	require.NoError(t, err)
	assert.NotEmpty(t, session)
	assert.True(t, activated.IsActive)
	assert.NotNil(t, activated.LastLogin)

	sess, err := svc.sessions.Verify(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, user.ID, sess.UserID)

	_, _, err = svc.Activate(ctx, uid, token)
	assert.ErrorIs(t, err, apperr.ErrActivation, "a link works once")
}

func TestActivationLinkExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, box := newService(t, Options{})

	_, err := svc.Register(ctx, valid)
	require.NoError(t, err)
	uid, token := box.link(t)

	svc.tokens.now = func() time.Time { return time.Now().Add(73 * time.Hour) }
	_, _, err = svc.Activate(ctx, uid, token)
	assert.ErrorIs(t, err, apperr.ErrActivation)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, box := newService(t, Options{})

	_, err := svc.Register(ctx, valid)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", valid.Password)
	assert.ErrorIs(t, err, ErrInactive)
	_, _, err = svc.Login(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody", valid.Password)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	uid, token := box.link(t)
	_, _, err = svc.Activate(ctx, uid, token)
	require.NoError(t, err)

	session, user, err := svc.Login(ctx, " alice ", valid.Password)
	require.NoError(t, err)
	assert.NotEmpty(t, session)
	stored, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)

	sess, err := svc.sessions.Verify(ctx, session)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, sess))
	_, err = svc.sessions.Verify(ctx, session)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestSetStaff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, _ := newService(t, Options{})
	u := store.SeedUser("carol", false)

	require.NoError(t, svc.SetStaff(ctx, "carol", true))
	got, err := store.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsStaff)

	assert.ErrorIs(t, svc.SetStaff(ctx, "nobody", true), apperr.ErrNotFound)
}
