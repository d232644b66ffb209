package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

type mockMembership struct {
	mock.Mock
}

func (m *mockMembership) IsMember(ctx context.Context, roomID, userID idx.ID) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func TestIsOwner(t *testing.T) {
	t.Parallel()

	owner := &models.User{ID: idx.New()}
	other := &models.User{ID: idx.New()}
	room := &models.Room{ID: idx.New(), OwnerID: owner.ID}

	require.True(t, IsOwner(owner, room).Allowed)
	d := IsOwner(other, room)
	require.False(t, d.Allowed)
	require.ErrorIs(t, d.Err(), apperr.ErrForbidden)
	require.False(t, IsOwner(nil, room).Allowed)
}

func TestIsStaff(t *testing.T) {
	t.Parallel()

	require.True(t, IsStaff(&models.User{IsStaff: true}).Allowed)
	require.False(t, IsStaff(&models.User{}).Allowed)
	require.False(t, IsStaff(nil).Allowed)
	require.NoError(t, IsStaff(&models.User{IsStaff: true}).Err())
}

func TestMemberOrStaff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	room := &models.Room{ID: idx.New()}
	member := &models.User{ID: idx.New()}
	stranger := &models.User{ID: idx.New()}
	staff := &models.User{ID: idx.New(), IsStaff: true}

	m := new(mockMembership)
	m.On("IsMember", ctx, room.ID, member.ID).Return(true, nil)
	m.On("IsMember", ctx, room.ID, stranger.ID).Return(false, nil)
	m.On("IsMember", ctx, room.ID, staff.ID).Return(false, nil)
	p := New(m)

	require.NoError(t, p.RequireMemberOrStaff(ctx, member, room))
	require.NoError(t, p.RequireMemberOrStaff(ctx, staff, room))
	m.AssertNumberOfCalls(t, "IsMember", 1)
	require.ErrorIs(t, p.RequireMemberOrStaff(ctx, stranger, room), apperr.ErrForbidden)
	require.ErrorIs(t, p.RequireMember(ctx, staff, room), apperr.ErrForbidden, "staff is not a member")
}

func TestMembershipLookupFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	room := &models.Room{ID: idx.New()}
	user := &models.User{ID: idx.New()}
	m := new(mockMembership)
	m.On("IsMember", ctx, room.ID, user.ID).Return(false, errors.New("db down"))

	err := New(m).RequireMember(ctx, user, room)
	require.Error(t, err)
	require.NotErrorIs(t, err, apperr.ErrForbidden)
}
