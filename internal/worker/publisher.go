package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-reels/backend/internal/jobs"
	"github.com/aura-reels/backend/pkg/queue"
)

// Enqueuer queues publish jobs.
type Enqueuer interface {
	EnqueuePublish(ctx context.Context, payload queue.PublishPayload) error
}

// PublishOnComplete returns a jobs.Manager completion hook that queues the output for upload.
func PublishOnComplete(q Enqueuer, logger *zap.Logger) func(jobs.Job) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(job jobs.Job) {
		if job.Output == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := q.EnqueuePublish(ctx, queue.PublishPayload{
			EditJobID:   job.ID,
			Path:        job.OutputPath(),
			Format:      job.Request.OutputFormat,
			ContentType: job.Output.ContentType,
		})
		if err != nil {
			logger.Error("enqueue publish failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// KeyLookup finds the S3 key of a published reel.
type KeyLookup interface {
	PublishedKey(ctx context.Context, editJobID string) (string, error)
}

// Signer presigns download links.
type Signer interface {
	GeneratePresignedDownloadURL(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
}

// PublishedURLs resolves presigned links for published reels; it implements jobs.Publisher.
type PublishedURLs struct {
	keys   KeyLookup
	signer Signer
}

// NewPublishedURLs creates a published URL resolver.
func NewPublishedURLs(keys KeyLookup, signer Signer) *PublishedURLs {
	return &PublishedURLs{keys: keys, signer: signer}
}

// PublishedURL returns a presigned link to the reel published for jobID.
func (p *PublishedURLs) PublishedURL(ctx context.Context, jobID string) (string, time.Duration, error) {
	key, err := p.keys.PublishedKey(ctx, jobID)
	if err != nil {
		return "", 0, err
	}
	url, err := p.signer.GeneratePresignedDownloadURL(ctx, key)
	if err != nil {
		return "", 0, err
	}
	return url, p.signer.PresignExpire(), nil
}
