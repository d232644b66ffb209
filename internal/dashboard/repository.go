package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

const viewSelect = `SELECT sr.id, sr.service_id, sr.description, sr.cost::text, sr.created_at, sr.updated_at,
		s.service_name, r.id, r.name, u.id, u.username
	FROM service_records sr
	INNER JOIN services s ON s.id = sr.service_id
	INNER JOIN rooms r ON r.id = s.room_id
	INNER JOIN users u ON u.id = s.created_by`

const viewOrder = ` ORDER BY sr.created_at DESC, sr.id DESC`

// Repository runs aggregation queries over rooms, services and records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a dashboard repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SumRoomCosts sums costs of the room's records created in [from, to).
func (r *Repository) SumRoomCosts(ctx context.Context, roomID idx.ID, from, to time.Time) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(sr.cost), 0)::text
		FROM service_records sr
		INNER JOIN services s ON s.id = sr.service_id
		WHERE s.room_id = $1 AND sr.created_at >= $2 AND sr.created_at < $3`
	var total string
	if err := r.pool.QueryRow(ctx, q, roomID, from, to).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum room costs: %w", err)
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse total %q: %w", total, err)
	}
	return d, nil
}

// ListRoomRecords returns every record in the room, newest first.
func (r *Repository) ListRoomRecords(ctx context.Context, roomID idx.ID) ([]models.RecordView, error) {
	return r.views(ctx, viewSelect+` WHERE r.id = $1`+viewOrder, roomID)
}

// SearchRecords returns records across all rooms matching f.
func (r *Repository) SearchRecords(ctx context.Context, f models.RecordFilter) ([]models.RecordView, error) {
	q, args := buildAdminQuery(f)
	return r.views(ctx, q, args...)
}

// DistinctServiceNames returns every service name in use, sorted.
func (r *Repository) DistinctServiceNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT service_name FROM services ORDER BY service_name`)
	if err != nil {
		return nil, fmt.Errorf("list service names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// CountUsers returns the number of registered users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *Repository) views(ctx context.Context, q string, args ...any) ([]models.RecordView, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	var list []models.RecordView
	for rows.Next() {
		var (
			v    models.RecordView
			cost string
		)
		if err := rows.Scan(&v.ID, &v.ServiceID, &v.Description, &cost, &v.CreatedAt, &v.UpdatedAt,
			&v.ServiceName, &v.RoomID, &v.RoomName, &v.CreatedByID, &v.CreatedByUsername); err != nil {
			return nil, err
		}
		if v.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parse cost %q: %w", cost, err)
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// buildAdminQuery ANDs together the non-empty filters of f.
func buildAdminQuery(f models.RecordFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			`(s.service_name ILIKE $%d ESCAPE '\' OR u.username ILIKE $%d ESCAPE '\' OR sr.description ILIKE $%d ESCAPE '\')`, n, n, n))
	}
	if f.ServiceName != "" {
		args = append(args, f.ServiceName)
		where = append(where, fmt.Sprintf(`s.service_name = $%d`, len(args)))
	}
	if f.Date != nil {
		day := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, time.UTC)
		args = append(args, day, day.AddDate(0, 0, 1))
		where = append(where, fmt.Sprintf(`sr.created_at >= $%d AND sr.created_at < $%d`, len(args)-1, len(args)))
	}
	q := viewSelect
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	return q + viewOrder, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
