package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/mailer"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/queue"
)

// dequeueTimeout bounds each blocking pop so shutdown is noticed promptly.
const dequeueTimeout = 5 * time.Second

// Jobs is the job source the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context, key string, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, key string, job *queue.Job) (bool, error)
}

// LogUpdater updates email_logs after a delivery attempt.
type LogUpdater interface {
	MarkEmailSent(ctx context.Context, id idx.ID, at time.Time) error
	MarkEmailFailed(ctx context.Context, id idx.ID, msg string) error
}

// EmailProcessor delivers queued emails and updates their log rows.
type EmailProcessor struct {
	jobs    Jobs
	mailer  mailer.Mailer
	logs    LogUpdater
	logger  *zap.Logger
	backoff time.Duration
}

// NewEmailProcessor creates an email processor.
func NewEmailProcessor(jobs Jobs, m mailer.Mailer, logs LogUpdater, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{jobs: jobs, mailer: m, logs: logs, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	payload, err := decode(job)
	if err != nil {
		return err
	}
	msg := mailer.Message{
		To:      payload.RecipientEmail,
		Subject: payload.Subject,
		Text:    payload.BodyText,
		HTML:    payload.BodyHTML,
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if id, err := idx.Parse(payload.EmailLogID); err == nil {
		if err := p.logs.MarkEmailSent(ctx, id, time.Now().UTC()); err != nil {
			p.logger.Warn("mark email sent failed", zap.Error(err), zap.String("email_log_id", payload.EmailLogID))
		}
	}
	p.logger.Info("email delivered", zap.String("job_id", job.ID), zap.String("email_log_id", payload.EmailLogID))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx, queue.QueueEmails, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.fail(ctx, job, err)
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) fail(ctx context.Context, job *queue.Job, cause error) {
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(cause))
	dead, err := p.jobs.Retry(ctx, queue.QueueEmails, job)
	if err != nil {
		p.logger.Error("retry enqueue failed", zap.Error(err))
	}
	if !dead {
		return
	}
	payload, err := decode(job)
	if err != nil {
		return
	}
	if id, err := idx.Parse(payload.EmailLogID); err == nil {
		if err := p.logs.MarkEmailFailed(ctx, id, cause.Error()); err != nil {
			p.logger.Warn("mark email failed", zap.Error(err), zap.String("email_log_id", payload.EmailLogID))
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func decode(job *queue.Job) (queue.EmailPayload, error) {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}
