package rooms

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

const roomColumns = `id, name, description, invite_code, owner_id, created_at`

// Repository handles room and room_members persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rooms repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRoom inserts the room and the owner membership in one transaction.
// A taken invite code inserts nothing and returns false.
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) (bool, error) {
	inserted := false
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO rooms (id, name, description, invite_code, owner_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (invite_code) DO NOTHING
			RETURNING created_at`
		err := tx.QueryRow(ctx, q, room.ID, room.Name, room.Description, room.InviteCode, room.OwnerID).
			Scan(&room.CreatedAt)
		if database.IsNoRows(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, room.OwnerID); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// GetRoom returns a room by ID.
func (r *Repository) GetRoom(ctx context.Context, id idx.ID) (*models.Room, error) {
	return r.getOne(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
}

// GetRoomByInviteCode returns the room with exactly this invite code.
func (r *Repository) GetRoomByInviteCode(ctx context.Context, code string) (*models.Room, error) {
	return r.getOne(ctx, `SELECT `+roomColumns+` FROM rooms WHERE invite_code = $1`, code)
}

func (r *Repository) getOne(ctx context.Context, q string, arg any) (*models.Room, error) {
	var room models.Room
	err := r.pool.QueryRow(ctx, q, arg).Scan(&room.ID, &room.Name, &room.Description, &room.InviteCode, &room.OwnerID, &room.CreatedAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("room")
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &room, nil
}

// AddMember adds a user to a room. Existing members are left untouched.
func (r *Repository) AddMember(ctx context.Context, roomID, userID idx.ID) error {
	const q = `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, roomID, userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *Repository) RemoveMember(ctx context.Context, roomID, userID idx.ID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// IsMember reports whether the user belongs to the room.
func (r *Repository) IsMember(ctx context.Context, roomID, userID idx.ID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, roomID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// ListRoomsForUser returns rooms the user is a member of, in creation order.
func (r *Repository) ListRoomsForUser(ctx context.Context, userID idx.ID) ([]*models.Room, error) {
	const q = `SELECT r.id, r.name, r.description, r.invite_code, r.owner_id, r.created_at
		FROM rooms r
		INNER JOIN room_members rm ON rm.room_id = r.id
		WHERE rm.user_id = $1
		ORDER BY r.id`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()
	var list []*models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Description, &room.InviteCode, &room.OwnerID, &room.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &room)
	}
	return list, rows.Err()
}

// ListMembers returns the members of a room (room_members joined with users), earliest first.
func (r *Repository) ListMembers(ctx context.Context, roomID idx.ID) ([]models.Member, error) {
	const q = `SELECT u.id, u.username, u.email, u.id = r.owner_id, rm.created_at
		FROM room_members rm
		INNER JOIN users u ON u.id = rm.user_id
		INNER JOIN rooms r ON r.id = rm.room_id
		WHERE rm.room_id = $1
		ORDER BY rm.created_at ASC, u.id ASC`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var list []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Email, &m.IsOwner, &m.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// DeleteRoom deletes records, services, memberships and the room, children first.
func (r *Repository) DeleteRoom(ctx context.Context, id idx.ID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		steps := []struct{ what, q string }{
			{"records", `DELETE FROM service_records WHERE service_id IN (SELECT id FROM services WHERE room_id = $1)`},
			{"services", `DELETE FROM services WHERE room_id = $1`},
			{"members", `DELETE FROM room_members WHERE room_id = $1`},
			{"room", `DELETE FROM rooms WHERE id = $1`},
		}
		for _, step := range steps {
			tag, err := tx.Exec(ctx, step.q, id)
			if err != nil {
				return fmt.Errorf("delete %s: %w", step.what, err)
			}
			if step.what == "room" && tag.RowsAffected() == 0 {
				return apperr.NotFound("room")
			}
		}
		return nil
	})
}
