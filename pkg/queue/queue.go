package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEmails is the Redis list key for email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeEmail JobType = "email"
)

// EmailPayload is the payload for email jobs.
type EmailPayload struct {
	EmailLogID     string `json:"email_log_id"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	BodyText       string `json:"body_text"`
	BodyHTML       string `json:"body_html"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueEmail enqueues an email job.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeEmail,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	if err := q.push(ctx, QueueEmails, &job); err != nil {
		return err
	}
	q.logger.Debug("enqueued email job", zap.String("job_id", job.ID), zap.String("email_log_id", payload.EmailLogID))
	return nil
}

// Dequeue blocks up to timeout for a job on key. A nil job with nil error means
// the wait timed out or the entry was not a valid job.
func (q *Queue) Dequeue(ctx context.Context, key string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job on key with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
// It reports whether the job was dead-lettered.
func (q *Queue) Retry(ctx context.Context, key string, job *Job) (bool, error) {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return false, err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return true, nil
	}
	if err := q.push(ctx, key, job); err != nil {
		return false, err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return false, nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// DeadLetters returns the number of jobs waiting in the dead-letter queue.
func (q *Queue) DeadLetters(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, QueueDLQ).Result()
	if err != nil {
		return 0, fmt.Errorf("llen dlq: %w", err)
	}
	return n, nil
}

// RequeueDead moves up to limit dead-lettered email jobs back onto the email
// queue with a fresh attempt count. It returns how many were moved.
func (q *Queue) RequeueDead(ctx context.Context, limit int) (int, error) {
	moved := 0
	for moved < limit {
		raw, err := q.client.LPop(ctx, QueueDLQ).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("lpop dlq: %w", err)
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil || job.Type != JobTypeEmail {
			q.logger.Warn("dropping unreadable dlq entry", zap.String("raw", raw))
			continue
		}
		job.Attempt = 0
		if err := q.push(ctx, QueueEmails, &job); err != nil {
			return moved, err
		}
		moved++
	}
	if moved > 0 {
		q.logger.Info("requeued dead letters", zap.Int("count", moved))
	}
	return moved, nil
}
