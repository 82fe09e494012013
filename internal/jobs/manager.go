package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-reels/backend/internal/assets"
	"github.com/aura-reels/backend/internal/editcmd"
	"github.com/aura-reels/backend/internal/probe"
	"github.com/aura-reels/backend/pkg/apperr"
)

const idPrefix = "edit"

// Transcoder runs an ffmpeg argument list.
type Transcoder interface {
	Run(ctx context.Context, args []string) error
	CommandLine(args []string) string
}

// AssetResolver looks up registered assets.
type AssetResolver interface {
	Resolve(id string) (assets.MediaAsset, error)
}

// Observer receives job lifecycle events (metrics).
type Observer interface {
	JobSubmitted()
	JobFinished(state string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) JobSubmitted()                      {}
func (nopObserver) JobFinished(string, time.Duration) {}

type record struct {
	job  Job
	done chan struct{}
}

// Manager owns the job table and runs one background task per job.
type Manager struct {
	mu    sync.RWMutex
	jobs  map[string]*record
	hooks []func(Job)

	assets     AssetResolver
	prober     assets.Prober
	transcoder Transcoder
	outputDir  string
	observer   Observer
	log        *zap.Logger
	now        func() time.Time
	spawn      Spawner

	tasks sync.WaitGroup
}

// Spawner starts a background task. The default runs each task on its own goroutine.
type Spawner func(task func())

// Option customizes a Manager.
type Option func(*Manager)

// WithObserver reports lifecycle events to o.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithSpawner replaces how background tasks are started (tests run them inline or later).
func WithSpawner(s Spawner) Option {
	return func(m *Manager) {
		if s != nil {
			m.spawn = s
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a job manager writing outputs into outputDir.
func NewManager(resolver AssetResolver, prober assets.Prober, transcoder Transcoder, outputDir string, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		jobs:       make(map[string]*record),
		assets:     resolver,
		prober:     prober,
		transcoder: transcoder,
		outputDir:  outputDir,
		observer:   nopObserver{},
		log:        log,
		now:        time.Now,
		spawn:      func(task func()) { go task() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnComplete registers fn to run after a job reaches completed. Register hooks before
// submitting jobs.
func (m *Manager) OnComplete(fn func(Job)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Submit validates req, records a queued job and starts it in the background.
// The returned job is already visible through Get.
func (m *Manager) Submit(req EditRequest) (Job, error) {
	if err := req.Validate(); err != nil {
		return Job{}, err
	}
	if _, err := m.SourcePath(req.VideoID); err != nil {
		return Job{}, err
	}
	if req.wantsMusic() {
		if _, err := m.musicAsset(req.MusicFileID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return Job{}, apperr.Invalid("music file not found: %s", req.MusicFileID)
			}
			return Job{}, err
		}
	}

	now := m.now()
	rec := &record{
		job: Job{
			ID:        assets.NewID(idPrefix),
			State:     StateQueued,
			VideoID:   req.VideoID,
			Request:   req,
			CreatedAt: now,
			UpdatedAt: now,
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[rec.job.ID] = rec
	snapshot := rec.job
	m.mu.Unlock()

	m.observer.JobSubmitted()
	m.log.Info("edit job queued", zap.String("job_id", snapshot.ID), zap.String("video_id", req.VideoID))

	m.tasks.Add(1)
	m.spawn(func() { m.run(rec) })
	return snapshot, nil
}

// Get returns a snapshot of the job with id.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[id]
	if !ok {
		return Job{}, apperr.NotFound("job %s", id)
	}
	return rec.job, nil
}

// Wait blocks until the job with id is terminal or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Job, error) {
	m.mu.RLock()
	rec, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return Job{}, apperr.NotFound("job %s", id)
	}
	select {
	case <-rec.done:
		return m.Get(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Drain waits for every background task to finish or ctx to end.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Download returns the completed job whose output file can be served.
func (m *Manager) Download(id string) (Job, error) {
	job, err := m.Get(id)
	if err != nil {
		return Job{}, err
	}
	if job.State != StateCompleted {
		return job, fmt.Errorf("%w: job %s is %s", ErrNotReady, id, job.State)
	}
	if job.OutputPath() == "" {
		return job, fmt.Errorf("%w: job %s", ErrOutputMissing, id)
	}
	if _, err := os.Stat(job.OutputPath()); err != nil {
		return job, fmt.Errorf("%w: job %s: %v", ErrOutputMissing, id, err)
	}
	return job, nil
}

// Completed returns completed jobs, newest first.
func (m *Manager) Completed() []Job {
	m.mu.RLock()
	out := make([]Job, 0, len(m.jobs))
	for _, rec := range m.jobs {
		if rec.job.State == StateCompleted {
			out = append(out, rec.job)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// SourcePath resolves an edit source: a completed job's output first, then a registered asset.
func (m *Manager) SourcePath(id string) (string, error) {
	m.mu.RLock()
	rec, ok := m.jobs[id]
	var path string
	if ok {
		path = rec.job.OutputPath()
	}
	m.mu.RUnlock()
	if path != "" {
		return path, nil
	}
	asset, err := m.assets.Resolve(id)
	if err != nil {
		return "", apperr.NotFound("source video not found: %s", id)
	}
	return asset.Path, nil
}

func (m *Manager) run(rec *record) {
	defer m.tasks.Done()
	defer close(rec.done)

	started := m.now()
	job, err := m.update(rec, func(j *Job) error { return j.transition(StateProcessing, m.now()) })
	if err != nil {
		m.log.Error("edit job could not start", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	out, err := m.execute(job)
	if err != nil {
		job, _ = m.update(rec, func(j *Job) error { return j.fail(err.Error(), m.now()) })
		m.observer.JobFinished(string(StateFailed), m.now().Sub(started))
		m.log.Error("edit job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	job, err = m.update(rec, func(j *Job) error { return j.complete(out, m.now()) })
	if err != nil {
		m.log.Error("edit job could not complete", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	m.observer.JobFinished(string(StateCompleted), m.now().Sub(started))
	m.log.Info("edit job completed", zap.String("job_id", job.ID), zap.String("output", out.Path))

	m.mu.RLock()
	hooks := append([]func(Job){}, m.hooks...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(job)
	}
}

// update applies fn to the job record under the lock and returns the new snapshot.
func (m *Manager) update(rec *record, fn func(*Job) error) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := fn(&rec.job); err != nil {
		return rec.job, err
	}
	return rec.job, nil
}

// musicAsset resolves an overlay track; only audio assets qualify.
func (m *Manager) musicAsset(id string) (assets.MediaAsset, error) {
	music, err := m.assets.Resolve(id)
	if err != nil {
		return assets.MediaAsset{}, apperr.NotFound("music file not found: %s", id)
	}
	if music.Kind != probe.KindAudio {
		return assets.MediaAsset{}, apperr.Invalid("music_file_id %s is not an audio file", id)
	}
	return music, nil
}

func (m *Manager) execute(job Job) (assets.MediaAsset, error) {
	req := job.Request
	sourcePath, err := m.SourcePath(req.VideoID)
	if err != nil {
		return assets.MediaAsset{}, err
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return assets.MediaAsset{}, apperr.NotFound("source video not found: %s", req.VideoID)
	}

	musicPath := ""
	if req.wantsMusic() {
		music, err := m.musicAsset(req.MusicFileID)
		if err != nil {
			return assets.MediaAsset{}, err
		}
		musicPath = music.Path
	}

	if err := os.MkdirAll(m.outputDir, 0o750); err != nil {
		return assets.MediaAsset{}, fmt.Errorf("create output dir: %w", err)
	}
	outputPath := filepath.Join(m.outputDir, job.ID+"."+req.OutputFormat)
	args := editcmd.Build(req.commandRequest(), sourcePath, musicPath, outputPath)
	m.log.Debug("running ffmpeg", zap.String("job_id", job.ID), zap.String("cmd", m.transcoder.CommandLine(args)))

	// Edit jobs are not cancellable; they outlive the request that submitted them.
	if err := m.transcoder.Run(context.Background(), args); err != nil {
		return assets.MediaAsset{}, err
	}
	if _, err := os.Stat(outputPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return assets.MediaAsset{}, fmt.Errorf("ffmpeg produced no output: %w", err)
		}
		return assets.MediaAsset{}, err
	}

	return assets.MediaAsset{
		ID:          job.ID,
		Filename:    filepath.Base(outputPath),
		Path:        outputPath,
		ContentType: ContentType(req.OutputFormat),
		Kind:        probe.KindVideo,
		Metadata:    m.prober.Probe(context.Background(), outputPath, probe.KindVideo),
		CreatedAt:   m.now(),
	}, nil
}
