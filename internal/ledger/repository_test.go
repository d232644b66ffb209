package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/internal/pgtest"
	"github.com/roomledger/backend/pkg/idx"
)

func TestRepositoryCostRoundTrip(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	owner := pgtest.SeedUser(t, pool, "alice", false)
	room := pgtest.SeedRoom(t, pool, owner, "Flat", "00000010")
	service := pgtest.SeedService(t, pool, room, owner, "Electricity")

	for _, cost := range []string{"45.50", "0.00", "0.01", "99999999.99", "12"} {
		t.Run(cost, func(t *testing.T) {
			want, err := ParseCost(cost)
			require.NoError(t, err)
			rec := &models.Record{ID: idx.New(), ServiceID: service.ID, Description: "bill", Cost: want}
			require.NoError(t, repo.CreateRecord(ctx, rec))

			got, err := repo.GetRecord(ctx, rec.ID)
			require.NoError(t, err)
			assert.True(t, want.Equal(got.Cost), "got %s", got.Cost)
			assert.Equal(t, want.StringFixed(2), got.Cost.StringFixed(2))
			assert.Equal(t, int32(-2), got.Cost.Exponent(), "NUMERIC(10,2) keeps two places")
		})
	}

	t.Run("negative cost is rejected by the table", func(t *testing.T) {
		rec := &models.Record{ID: idx.New(), ServiceID: service.ID, Description: "refund", Cost: decimal.RequireFromString("-1.00")}
		assert.Error(t, repo.CreateRecord(ctx, rec))
	})
}

func TestRepositoryUpdateAndList(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	owner := pgtest.SeedUser(t, pool, "alice", false)
	room := pgtest.SeedRoom(t, pool, owner, "Flat", "00000011")
	service := pgtest.SeedService(t, pool, room, owner, "Electricity")

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	older := pgtest.SeedRecord(t, pool, service, "May", "10.00", base)
	newer := pgtest.SeedRecord(t, pool, service, "June", "20.00", base.Add(time.Hour))

	list, err := repo.ListRecords(ctx, service.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer, list[0].ID)
	assert.Equal(t, older, list[1].ID)

	rec := list[1]
	rec.Description = "May, corrected"
	rec.Cost = decimal.RequireFromString("11.25")
	require.NoError(t, repo.UpdateRecord(ctx, rec))
	assert.True(t, rec.UpdatedAt.After(rec.CreatedAt))

	got, err := repo.GetRecord(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, "May, corrected", got.Description)
	assert.Equal(t, "11.25", got.Cost.StringFixed(2))

	missing := &models.Record{ID: idx.New(), Cost: decimal.Zero}
	assert.ErrorIs(t, repo.UpdateRecord(ctx, missing), apperr.ErrNotFound)

	require.NoError(t, repo.DeleteRecord(ctx, older))
	assert.ErrorIs(t, repo.DeleteRecord(ctx, older), apperr.ErrNotFound)
}
