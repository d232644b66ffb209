package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/database"
	"github.com/roomledger/backend/pkg/idx"
)

// Repository handles services persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateService inserts a service.
func (r *Repository) CreateService(ctx context.Context, s *models.Service) error {
	const q = `INSERT INTO services (id, room_id, created_by, service_name, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	if err := r.pool.QueryRow(ctx, q, s.ID, s.RoomID, s.CreatedBy, s.ServiceName, s.Description).Scan(&s.CreatedAt); err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

// GetService returns a service by ID.
func (r *Repository) GetService(ctx context.Context, id idx.ID) (*models.Service, error) {
	const q = `SELECT id, room_id, created_by, service_name, description, created_at FROM services WHERE id = $1`
	var s models.Service
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.RoomID, &s.CreatedBy, &s.ServiceName, &s.Description, &s.CreatedAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("service")
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &s, nil
}

// ListServices returns a room's services, newest first.
func (r *Repository) ListServices(ctx context.Context, roomID idx.ID) ([]*models.Service, error) {
	const q = `SELECT id, room_id, created_by, service_name, description, created_at
		FROM services WHERE room_id = $1 ORDER BY id DESC`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()
	var list []*models.Service
	for rows.Next() {
		var s models.Service
		if err := rows.Scan(&s.ID, &s.RoomID, &s.CreatedBy, &s.ServiceName, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}

// DeleteService deletes the service's records and then the service in one transaction.
func (r *Repository) DeleteService(ctx context.Context, id idx.ID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM service_records WHERE service_id = $1`, id); err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete service: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("service")
		}
		return nil
	})
}
