package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/internal/pgtest"
	"github.com/roomledger/backend/internal/policy"
	"github.com/roomledger/backend/pkg/idx"
)

func TestRepositoryCreateRoom(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	owner := pgtest.SeedUser(t, pool, "alice", false)

	room := &models.Room{ID: idx.New(), Name: "Flat", InviteCode: "ABCD1234", OwnerID: owner.ID}
	ok, err := repo.CreateRoom(ctx, room)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, room.CreatedAt.IsZero())

	member, err := repo.IsMember(ctx, room.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, member, "owner membership is inserted with the room")

	t.Run("taken invite code inserts nothing", func(t *testing.T) {
		dup := &models.Room{ID: idx.New(), Name: "Other", InviteCode: "ABCD1234", OwnerID: owner.ID}
		ok, err := repo.CreateRoom(ctx, dup)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, pgtest.Count(t, pool, "rooms", "id = $1", dup.ID))
		assert.Zero(t, pgtest.Count(t, pool, "room_members", "room_id = $1", dup.ID))
	})

	t.Run("service retries on a collision", func(t *testing.T) {
		codes := []string{"ABCD1234", "ABCD1234", "FFFF0000"}
		svc := NewService(repo, nil, policy.New(repo), nil)
		svc.newCode = func() string {
			c := codes[0]
			codes = codes[1:]
			return c
		}
		got, err := svc.CreateRoom(ctx, owner, "Second", "")
		require.NoError(t, err)
		assert.Equal(t, "FFFF0000", got.InviteCode)

		byCode, err := repo.GetRoomByInviteCode(ctx, "FFFF0000")
		require.NoError(t, err)
		assert.Equal(t, got.ID, byCode.ID)
	})
}

func TestRepositoryMembership(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	owner := pgtest.SeedUser(t, pool, "alice", false)
	bob := pgtest.SeedUser(t, pool, "bob", false)
	room := pgtest.SeedRoom(t, pool, owner, "Flat", "00000001")

	t.Run("join is idempotent", func(t *testing.T) {
		require.NoError(t, repo.AddMember(ctx, room.ID, bob.ID))
		require.NoError(t, repo.AddMember(ctx, room.ID, bob.ID))
		assert.Equal(t, 1, pgtest.Count(t, pool, "room_members", "room_id = $1 AND user_id = $2", room.ID, bob.ID))

		members, err := repo.ListMembers(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, owner.ID, members[0].UserID)
		assert.True(t, members[0].IsOwner)
		assert.False(t, members[1].IsOwner)
	})

	t.Run("rooms are listed per member", func(t *testing.T) {
		rooms, err := repo.ListRoomsForUser(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, room.ID, rooms[0].ID)
	})

	t.Run("remove member", func(t *testing.T) {
		require.NoError(t, repo.RemoveMember(ctx, room.ID, bob.ID))
		ok, err := repo.IsMember(ctx, room.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRepositoryDeleteRoom(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	owner := pgtest.SeedUser(t, pool, "alice", false)
	room := pgtest.SeedRoom(t, pool, owner, "Flat", "00000002")
	other := pgtest.SeedRoom(t, pool, owner, "Other", "00000003")
	svc := pgtest.SeedService(t, pool, room, owner, "Electricity")
	kept := pgtest.SeedService(t, pool, other, owner, "Water")
	pgtest.SeedRecord(t, pool, svc, "June", "45.50", time.Now())
	pgtest.SeedRecord(t, pool, kept, "June", "10.00", time.Now())

	require.NoError(t, repo.DeleteRoom(ctx, room.ID))

	assert.Zero(t, pgtest.Count(t, pool, "service_records", "service_id = $1", svc.ID))
	assert.Zero(t, pgtest.Count(t, pool, "services", "room_id = $1", room.ID))
	assert.Zero(t, pgtest.Count(t, pool, "room_members", "room_id = $1", room.ID))
	_, err := repo.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, 1, pgtest.Count(t, pool, "service_records", "service_id = $1", kept.ID), "other rooms are untouched")

	err = repo.DeleteRoom(ctx, room.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
