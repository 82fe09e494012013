package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-reels/backend/pkg/apperr"
)

const (
	// QueuePublish is the Redis list key for reel publish jobs.
	QueuePublish = "reels:publish"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "reels:publish:dlq"
	// PublishedHash maps edit job ids to the S3 keys of their published reels.
	PublishedHash = "reels:published"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const JobTypePublishReel JobType = "publish_reel"

// PublishPayload names an edit output on the shared data volume.
type PublishPayload struct {
	EditJobID   string `json:"edit_job_id"`
	Path        string `json:"path"`
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
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

// EnqueuePublish enqueues a reel publish job.
func (q *Queue) EnqueuePublish(ctx context.Context, payload PublishPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypePublishReel,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueuePublish, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued publish job", zap.String("queue_job_id", job.ID), zap.String("job_id", payload.EditJobID))
	return nil
}

// Dequeue blocks for up to timeout waiting for a job. It returns nil when none
// arrived or the payload was not a job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueuePublish).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("queue_job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("queue_job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueuePublish, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("queue_job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// MarkPublished records the S3 key a reel was uploaded to.
func (q *Queue) MarkPublished(ctx context.Context, editJobID, key string) error {
	if err := q.client.HSet(ctx, PublishedHash, editJobID, key).Err(); err != nil {
		return fmt.Errorf("hset published: %w", err)
	}
	return nil
}

// PublishedKey returns the S3 key of a published reel, or apperr.ErrNotFound.
func (q *Queue) PublishedKey(ctx context.Context, editJobID string) (string, error) {
	key, err := q.client.HGet(ctx, PublishedHash, editJobID).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperr.NotFound("reel %s not published yet", editJobID)
	}
	if err != nil {
		return "", fmt.Errorf("hget published: %w", err)
	}
	return key, nil
}
