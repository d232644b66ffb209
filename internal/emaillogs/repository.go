package emaillogs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateEmailLog inserts a log entry.
func (r *Repository) CreateEmailLog(ctx context.Context, l *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, user_id, email_type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING created_at`
	if err := r.pool.QueryRow(ctx, q, l.ID, l.UserID, l.EmailType, l.RecipientEmail, l.Subject, l.Status).Scan(&l.CreatedAt); err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// MarkEmailSent sets status sent and the delivery time.
func (r *Repository) MarkEmailSent(ctx context.Context, id idx.ID, at time.Time) error {
	return r.mark(ctx, `UPDATE email_logs SET status = $2, sent_at = $3, error_message = NULL WHERE id = $1`,
		id, models.EmailLogStatusSent, at)
}

// MarkEmailFailed sets status failed with the error text.
func (r *Repository) MarkEmailFailed(ctx context.Context, id idx.ID, msg string) error {
	return r.mark(ctx, `UPDATE email_logs SET status = $2, error_message = $3 WHERE id = $1`,
		id, models.EmailLogStatusFailed, msg)
}

func (r *Repository) mark(ctx context.Context, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update email log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("email log")
	}
	return nil
}

// ListRecentEmailLogs returns the newest email logs first.
func (r *Repository) ListRecentEmailLogs(ctx context.Context, limit int) ([]*models.EmailLog, error) {
	const q = `SELECT id, user_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		ORDER BY id DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.UserID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
