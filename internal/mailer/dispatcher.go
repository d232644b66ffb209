package mailer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/queue"
)

// LogStore records delivery attempts.
type LogStore interface {
	CreateEmailLog(ctx context.Context, l *models.EmailLog) error
	MarkEmailSent(ctx context.Context, id idx.ID, at time.Time) error
	MarkEmailFailed(ctx context.Context, id idx.ID, msg string) error
}

// Enqueuer hands an email to the background worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Dispatcher sends or enqueues email and keeps email_logs current. With an
// Enqueuer set, dispatching means enqueueing and the log stays pending until
// the worker delivers it.
type Dispatcher struct {
	logs    LogStore
	mailer  Mailer
	enqueue Enqueuer
	logger  *zap.Logger
	now     func() time.Time
}

// NewDispatcher creates a synchronous dispatcher.
func NewDispatcher(logs LogStore, m Mailer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logs: logs, mailer: m, logger: logger, now: time.Now}
}

// NewAsyncDispatcher creates a dispatcher that enqueues to the email worker.
func NewAsyncDispatcher(logs LogStore, q Enqueuer, logger *zap.Logger) *Dispatcher {
	d := NewDispatcher(logs, nil, logger)
	d.enqueue = q
	return d
}

// Queued reports whether Dispatch hands messages to the email worker instead
// of sending them.
func (d *Dispatcher) Queued() bool { return d.enqueue != nil }

// Dispatch sends msg (or enqueues it) and records the attempt. A non-nil
// error means the message will not be delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, userID *idx.ID, emailType string, msg Message) error {
	entry := &models.EmailLog{
		ID:             idx.New(),
		UserID:         userID,
		EmailType:      emailType,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		Status:         models.EmailLogStatusPending,
	}
	if err := d.logs.CreateEmailLog(ctx, entry); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}

	if d.enqueue != nil {
		err := d.enqueue.EnqueueEmail(ctx, queue.EmailPayload{
			EmailLogID:     entry.ID.String(),
			RecipientEmail: msg.To,
			Subject:        msg.Subject,
			BodyText:       msg.Text,
			BodyHTML:       msg.HTML,
		})
		if err != nil {
			d.markFailed(ctx, entry.ID, err)
			return fmt.Errorf("enqueue email: %w", err)
		}
		return nil
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		d.markFailed(ctx, entry.ID, err)
		return err
	}
	if err := d.logs.MarkEmailSent(ctx, entry.ID, d.now().UTC()); err != nil {
		d.logger.Warn("mark email sent", zap.String("email_log_id", entry.ID.String()), zap.Error(err))
	}
	return nil
}

func (d *Dispatcher) markFailed(ctx context.Context, id idx.ID, cause error) {
	d.logger.Error("email dispatch failed", zap.String("email_log_id", id.String()), zap.Error(cause))
	if err := d.logs.MarkEmailFailed(ctx, id, cause.Error()); err != nil {
		d.logger.Warn("mark email failed", zap.String("email_log_id", id.String()), zap.Error(err))
	}
}
