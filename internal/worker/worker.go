// Package worker publishes finished edit outputs to object storage.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aura-reels/backend/pkg/queue"
	"github.com/aura-reels/backend/pkg/storage"
)

const dequeueTimeout = 5 * time.Second

// Uploader stores a reel under key and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// JobQueue is the subset of the Redis queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
	MarkPublished(ctx context.Context, editJobID, key string) error
}

// Observer counts publish outcomes (metrics).
type Observer interface {
	ReelPublished(ok bool)
}

type nopObserver struct{}

func (nopObserver) ReelPublished(bool) {}

// PublishProcessor uploads edited reels from the shared data volume to S3.
type PublishProcessor struct {
	uploader Uploader
	queue    JobQueue
	observer Observer
	backoff  time.Duration
	logger   *zap.Logger
}

// NewPublishProcessor creates a publish processor.
func NewPublishProcessor(uploader Uploader, q JobQueue, observer Observer, logger *zap.Logger) *PublishProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &PublishProcessor{uploader: uploader, queue: q, observer: observer, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one publish job.
func (p *PublishProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypePublishReel {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.PublishPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	f, err := os.Open(payload.Path)
	if err != nil {
		return fmt.Errorf("open reel: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat reel: %w", err)
	}

	contentType := payload.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.ReelKey(payload.EditJobID, payload.Format)
	url, err := p.uploader.Upload(ctx, key, contentType, f, info.Size())
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.queue.MarkPublished(ctx, payload.EditJobID, key); err != nil {
		return fmt.Errorf("record published: %w", err)
	}

	p.logger.Info("reel published", zap.String("job_id", payload.EditJobID), zap.String("s3_key", key), zap.String("url", url))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *PublishProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("publish worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("dequeue error", zap.Error(err))
				p.wait(ctx)
			}
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("queue_job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.observer.ReelPublished(false)
			p.logger.Error("job failed", zap.String("queue_job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.wait(ctx)
			continue
		}
		p.observer.ReelPublished(true)
	}
}

func (p *PublishProcessor) wait(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
