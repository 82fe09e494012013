package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-reels/backend/pkg/queue"
)

type upload struct {
	key         string
	contentType string
	body        string
	length      int64
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.uploads = append(f.uploads, upload{key: key, contentType: contentType, body: string(data), length: contentLength})
	return "https://bucket.example/" + key, nil
}

func (f *fakeUploader) all() []upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upload(nil), f.uploads...)
}

type outcomes struct {
	mu       sync.Mutex
	ok, fail int
}

func (o *outcomes) ReelPublished(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.ok++
	} else {
		o.fail++
	}
}

func (o *outcomes) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ok, o.fail
}

func newQueue(t *testing.T) (*queue.Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.NewQueue(client, nil), mr
}

func writeReel(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func publishJob(t *testing.T, payload queue.PublishPayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: "q1", Type: queue.JobTypePublishReel, Payload: raw}
}

func TestProcessUploadsAndRecordsKey(t *testing.T) {
	q, _ := newQueue(t)
	up := &fakeUploader{}
	p := NewPublishProcessor(up, q, nil, nil)
	path := writeReel(t, "edit_abc.mov", "reel-bytes")

	job := publishJob(t, queue.PublishPayload{EditJobID: "edit_abc", Path: path, Format: "mov", ContentType: "video/quicktime"})
	require.NoError(t, p.Process(context.Background(), job))

	uploads := up.all()
	require.Len(t, uploads, 1)
	assert.Equal(t, upload{key: "reels/edit_abc.mov", contentType: "video/quicktime", body: "reel-bytes", length: 10}, uploads[0])

	key, err := q.PublishedKey(context.Background(), "edit_abc")
	require.NoError(t, err)
	assert.Equal(t, "reels/edit_abc.mov", key)
}

func TestProcessDefaultsContentType(t *testing.T) {
	q, _ := newQueue(t)
	up := &fakeUploader{}
	p := NewPublishProcessor(up, q, nil, nil)
	path := writeReel(t, "edit_x.mp4", "x")

	require.NoError(t, p.Process(context.Background(), publishJob(t, queue.PublishPayload{EditJobID: "edit_x", Path: path, Format: "mp4"})))
	assert.Equal(t, "video/mp4", up.all()[0].contentType)
}

func TestProcessErrors(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	t.Run("unknown type", func(t *testing.T) {
		p := NewPublishProcessor(&fakeUploader{}, q, nil, nil)
		err := p.Process(ctx, &queue.Job{Type: "transcode"})
		assert.ErrorContains(t, err, "unknown job type")
	})

	t.Run("bad payload", func(t *testing.T) {
		p := NewPublishProcessor(&fakeUploader{}, q, nil, nil)
		err := p.Process(ctx, &queue.Job{Type: queue.JobTypePublishReel, Payload: json.RawMessage(`"nope"`)})
		assert.ErrorContains(t, err, "unmarshal payload")
	})

	t.Run("missing file", func(t *testing.T) {
		p := NewPublishProcessor(&fakeUploader{}, q, nil, nil)
		job := publishJob(t, queue.PublishPayload{EditJobID: "edit_gone", Path: filepath.Join(t.TempDir(), "gone.mp4"), Format: "mp4"})
		err := p.Process(ctx, job)
		assert.ErrorContains(t, err, "open reel")
	})

	t.Run("upload failure leaves reel unpublished", func(t *testing.T) {
		p := NewPublishProcessor(&fakeUploader{err: errors.New("access denied")}, q, nil, nil)
		job := publishJob(t, queue.PublishPayload{EditJobID: "edit_denied", Path: writeReel(t, "r.mp4", "r"), Format: "mp4"})
		err := p.Process(ctx, job)
		assert.ErrorContains(t, err, "access denied")

		_, err = q.PublishedKey(ctx, "edit_denied")
		assert.Error(t, err)
	})
}

func TestRunPublishesQueuedReels(t *testing.T) {
	q, _ := newQueue(t)
	up := &fakeUploader{}
	obs := &outcomes{}
	p := NewPublishProcessor(up, q, obs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	path := writeReel(t, "edit_run.mp4", "run")
	require.NoError(t, q.EnqueuePublish(context.Background(), queue.PublishPayload{EditJobID: "edit_run", Path: path, Format: "mp4", ContentType: "video/mp4"}))

	require.Eventually(t, func() bool {
		_, err := q.PublishedKey(context.Background(), "edit_run")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	ok, fail := obs.counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, fail)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * dequeueTimeout):
		t.Fatal("worker did not stop")
	}
}

func TestRunRetriesThenDeadLetters(t *testing.T) {
	q, mr := newQueue(t)
	obs := &outcomes{}
	p := NewPublishProcessor(&fakeUploader{err: errors.New("s3 down")}, q, obs, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	path := writeReel(t, "edit_dlq.mp4", "dlq")
	require.NoError(t, q.EnqueuePublish(context.Background(), queue.PublishPayload{EditJobID: "edit_dlq", Path: path, Format: "mp4"}))

	require.Eventually(t, func() bool {
		items, err := mr.List(queue.QueueDLQ)
		return err == nil && len(items) == 1
	}, 5*time.Second, 20*time.Millisecond)

	_, fail := obs.counts()
	assert.Equal(t, queue.MaxRetries, fail)
}
