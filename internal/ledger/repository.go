package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/database"
	"github.com/roomledger/backend/pkg/idx"
)

const recordColumns = `id, service_id, description, cost::text, created_at, updated_at`

// Repository handles service_records persistence. Costs travel as text so
// NUMERIC values keep their exact scale.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRecord inserts a record.
func (r *Repository) CreateRecord(ctx context.Context, rec *models.Record) error {
	const q = `INSERT INTO service_records (id, service_id, description, cost)
		VALUES ($1, $2, $3, $4::numeric)
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, rec.ID, rec.ServiceID, rec.Description, rec.Cost.StringFixed(2)).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord returns a record by ID.
func (r *Repository) GetRecord(ctx context.Context, id idx.ID) (*models.Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM service_records WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("record")
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// UpdateRecord writes description and cost and refreshes updated_at.
func (r *Repository) UpdateRecord(ctx context.Context, rec *models.Record) error {
	const q = `UPDATE service_records
		SET description = $2, cost = $3::numeric, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, rec.ID, rec.Description, rec.Cost.StringFixed(2)).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if database.IsNoRows(err) {
		return apperr.NotFound("record")
	}
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// DeleteRecord hard-deletes a record.
func (r *Repository) DeleteRecord(ctx context.Context, id idx.ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM service_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("record")
	}
	return nil
}

// ListRecords returns a service's records, newest first.
func (r *Repository) ListRecords(ctx context.Context, serviceID idx.ID) ([]*models.Record, error) {
	q := `SELECT ` + recordColumns + ` FROM service_records
		WHERE service_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, q, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var list []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func scanRecord(row pgx.Row) (*models.Record, error) {
	var (
		rec  models.Record
		cost string
	)
	if err := row.Scan(&rec.ID, &rec.ServiceID, &rec.Description, &cost, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(cost)
	if err != nil {
		return nil, fmt.Errorf("parse cost %q: %w", cost, err)
	}
	rec.Cost = d
	return &rec, nil
}
