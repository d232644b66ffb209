package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/database"
	"github.com/roomledger/backend/pkg/idx"
)

const userColumns = `id, username, email, password_hash, is_active, is_staff, last_login, created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an accounts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUserByID returns a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id idx.ID) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByUsername returns a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *Repository) getOne(ctx context.Context, q string, arg any) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.IsActive, &u.IsStaff, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UsernameExists reports whether the username is taken.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

// EmailExists reports whether the email is taken, ignoring case.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email)
}

func (r *Repository) exists(ctx context.Context, q string, arg any) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, q, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return ok, nil
}

// CreateUser inserts u and runs then inside the same transaction. The insert
// is rolled back when then fails. A unique violation becomes a conflict.
func (r *Repository) CreateUser(ctx context.Context, u *models.User, then func(*models.User) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO users (id, username, email, password_hash, is_active, is_staff)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`
		err := tx.QueryRow(ctx, q, u.ID, u.Username, u.Email, u.PasswordHash, u.IsActive, u.IsStaff).
			Scan(&u.CreatedAt, &u.UpdatedAt)
		if database.IsUniqueViolation(err, "") {
			return apperr.Conflict("username or email already registered")
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if then != nil {
			return then(u)
		}
		return nil
	})
}

// ActivateUser flips is_active from false to true. It returns false when the
// user is unknown or already active.
func (r *Repository) ActivateUser(ctx context.Context, id idx.ID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = TRUE, updated_at = NOW() WHERE id = $1 AND is_active = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("activate user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeletePendingUser deletes a user that is still inactive. Active users are
// never removed here.
func (r *Repository) DeletePendingUser(ctx context.Context, id idx.ID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1 AND is_active = FALSE`, id); err != nil {
		return fmt.Errorf("delete pending user: %w", err)
	}
	return nil
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, id idx.ID, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// SetStaff grants or revokes staff rights.
func (r *Repository) SetStaff(ctx context.Context, username string, staff bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_staff = $2, updated_at = NOW() WHERE username = $1`, username, staff)
	if err != nil {
		return fmt.Errorf("set staff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}
