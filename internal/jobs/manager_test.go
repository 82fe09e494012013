package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-reels/backend/internal/assets"
	"github.com/aura-reels/backend/internal/probe"
	"github.com/aura-reels/backend/pkg/apperr"
)

type fakeAssets struct {
	mu     sync.Mutex
	assets map[string]assets.MediaAsset
}

func (f *fakeAssets) Resolve(id string) (assets.MediaAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return assets.MediaAsset{}, apperr.NotFound("asset %s", id)
	}
	return a, nil
}

func (f *fakeAssets) add(t *testing.T, dir, id string, kind probe.Kind) assets.MediaAsset {
	t.Helper()
	path := filepath.Join(dir, id+"_file")
	require.NoError(t, os.WriteFile(path, []byte(id), 0o600))
	a := assets.MediaAsset{ID: id, Filename: "file", Path: path, Kind: kind, CreatedAt: time.Now()}
	f.mu.Lock()
	f.assets[id] = a
	f.mu.Unlock()
	return a
}

type fakeProber struct{}

func (fakeProber) Probe(_ context.Context, _ string, kind probe.Kind) probe.Metadata {
	md := probe.Default(kind)
	md.Width, md.Height, md.Duration = 1080, 1920, 7.5
	return md
}

// fakeTranscoder writes the output file named by the last argument.
type fakeTranscoder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	skip  bool
}

func (f *fakeTranscoder) Run(_ context.Context, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	err, skip := f.err, f.skip
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if skip {
		return nil
	}
	return os.WriteFile(args[len(args)-1], []byte("edited"), 0o600)
}

func (f *fakeTranscoder) CommandLine(args []string) string {
	return "ffmpeg " + strings.Join(args, " ")
}

func (f *fakeTranscoder) lastCall() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// manualSpawner holds tasks until run is called.
type manualSpawner struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *manualSpawner) spawn(task func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
}

func (s *manualSpawner) runAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

type testEnv struct {
	manager *Manager
	assets  *fakeAssets
	tx      *fakeTranscoder
	spawner *manualSpawner
	dir     string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		assets:  &fakeAssets{assets: map[string]assets.MediaAsset{}},
		tx:      &fakeTranscoder{},
		spawner: &manualSpawner{},
		dir:     dir,
	}
	env.manager = NewManager(env.assets, fakeProber{}, env.tx, filepath.Join(dir, "edited_videos"), nil,
		WithSpawner(env.spawner.spawn))
	return env
}

func editOf(id string) EditRequest {
	req := DefaultEditRequest()
	req.VideoID = id
	return req
}

func TestSubmitIsVisibleAsQueuedBeforeRunning(t *testing.T) {
	env := newEnv(t)
	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)

	job, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)
	assert.Equal(t, StateQueued, job.State)

	got, err := env.manager.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, got.State)
	assert.Empty(t, env.tx.calls)

	_, err = env.manager.Download(job.ID)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestJobCompletes(t *testing.T) {
	env := newEnv(t)
	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)
	music := env.assets.add(t, env.dir, "music_b", probe.KindAudio)

	var hooked []Job
	env.manager.OnComplete(func(j Job) { hooked = append(hooked, j) })

	req := editOf("upload_a")
	end := 4.0
	req.StartTime, req.EndTime = 1, &end
	req.AddMusic, req.MusicFileID, req.MusicVolume = true, "music_b", 2
	job, err := env.manager.Submit(req)
	require.NoError(t, err)

	env.spawner.runAll()
	done, err := env.manager.Wait(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, done.State)
	assert.Empty(t, done.Error)
	require.NotNil(t, done.Output)
	assert.Equal(t, filepath.Join(env.dir, "edited_videos", job.ID+".mp4"), done.OutputPath())
	assert.Equal(t, "video/mp4", done.Output.ContentType)
	assert.Equal(t, 7.5, done.Output.Metadata.Duration)
	assert.FileExists(t, done.OutputPath())

	args := env.tx.lastCall()
	assert.Contains(t, args, music.Path)
	assert.Contains(t, args, "[0:v]trim=start=1:end=4,setpts=PTS-STARTPTS[vout];[0:a]atrim=start=1:end=4,asetpts=PTS-STARTPTS[a1];[1:a]volume=1[a2];[a1][a2]amix=inputs=2:duration=shortest[aout]")

	require.Len(t, hooked, 1)
	assert.Equal(t, job.ID, hooked[0].ID)

	dl, err := env.manager.Download(job.ID)
	require.NoError(t, err)
	assert.Equal(t, done.OutputPath(), dl.OutputPath())
}

func TestJobFailsOnTranscoderError(t *testing.T) {
	env := newEnv(t)
	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)
	env.tx.err = apperr.Wrap(apperr.ErrExternalTool, "ffmpeg", "Invalid data found when processing input", errors.New("exit status 1"))

	job, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)
	env.spawner.runAll()

	failed, err := env.manager.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, failed.State)
	assert.Contains(t, failed.Error, "Invalid data found")
	assert.Nil(t, failed.Output)

	_, err = env.manager.Download(job.ID)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestJobFailsWhenSourceFileVanishes(t *testing.T) {
	env := newEnv(t)
	src := env.assets.add(t, env.dir, "upload_a", probe.KindVideo)
	job, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(src.Path))
	env.spawner.runAll()

	failed, _ := env.manager.Get(job.ID)
	assert.Equal(t, StateFailed, failed.State)
	assert.Contains(t, failed.Error, "source video not found: upload_a")
	assert.Empty(t, env.tx.calls)
}

func TestJobFailsWhenNoOutputProduced(t *testing.T) {
	env := newEnv(t)
	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)
	env.tx.skip = true
	job, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)
	env.spawner.runAll()

	failed, _ := env.manager.Get(job.ID)
	assert.Equal(t, StateFailed, failed.State)
	assert.Contains(t, failed.Error, "no output")
}

func TestEditOfEditUsesJobOutput(t *testing.T) {
	env := newEnv(t)
	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)
	first, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)

	_, err = env.manager.Submit(editOf(first.ID))
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "queued job has no output to edit yet")

	env.spawner.runAll()
	second, err := env.manager.Submit(editOf(first.ID))
	require.NoError(t, err)
	env.spawner.runAll()

	done, _ := env.manager.Get(second.ID)
	assert.Equal(t, StateCompleted, done.State)
	firstDone, _ := env.manager.Get(first.ID)
	args := env.tx.lastCall()
	assert.Equal(t, firstDone.OutputPath(), args[1])
}

func TestSubmitValidation(t *testing.T) {
	env := newEnv(t)
	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)

	_, err := env.manager.Submit(editOf("upload_missing"))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	req := editOf("upload_a")
	req.AddMusic, req.MusicFileID = true, "music_missing"
	_, err = env.manager.Submit(req)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	req = editOf("upload_a")
	req.AddMusic = true
	_, err = env.manager.Submit(req)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	env.assets.add(t, env.dir, "upload_b", probe.KindVideo)
	req = editOf("upload_a")
	req.AddMusic, req.MusicFileID = true, "upload_b"
	_, err = env.manager.Submit(req)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.ErrorContains(t, err, "not an audio file")

	req = editOf("upload_a")
	req.OutputFormat = "gif"
	_, err = env.manager.Submit(req)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	req = editOf("upload_a")
	end := 2.0
	req.StartTime, req.EndTime = 3, &end
	_, err = env.manager.Submit(req)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	req = editOf("upload_a")
	req.StartTime = -1
	_, err = env.manager.Submit(req)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	assert.Empty(t, env.spawner.tasks)
}

func TestTerminalStatesAreSticky(t *testing.T) {
	at := time.Now()
	for _, terminal := range []State{StateCompleted, StateFailed} {
		j := Job{State: terminal}
		for _, to := range []State{StateQueued, StateProcessing, StateCompleted, StateFailed} {
			err := j.transition(to, at)
			assert.True(t, errors.Is(err, ErrIllegalTransition), "%s -> %s", terminal, to)
			assert.Equal(t, terminal, j.State)
		}
	}

	j := Job{State: StateQueued}
	assert.Error(t, j.complete(assets.MediaAsset{}, at), "queued cannot skip processing")
	require.NoError(t, j.transition(StateProcessing, at))
	require.NoError(t, j.fail("boom", at))
	assert.Error(t, j.complete(assets.MediaAsset{}, at))
	assert.Nil(t, j.Output)
	assert.Equal(t, "boom", j.Error)
}

func TestDownloadStates(t *testing.T) {
	env := newEnv(t)
	_, err := env.manager.Download("edit_nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)
	job, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)
	env.spawner.runAll()

	done, err := env.manager.Download(job.ID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(done.OutputPath()))
	_, err = env.manager.Download(job.ID)
	assert.True(t, errors.Is(err, ErrOutputMissing))
}

func TestCompletedNewestFirst(t *testing.T) {
	env := newEnv(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	env.manager.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)

	older, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)
	newer, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)
	env.spawner.runAll()

	list := env.manager.Completed()
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}

func TestDefaultSpawnerRunsConcurrently(t *testing.T) {
	dir := t.TempDir()
	fa := &fakeAssets{assets: map[string]assets.MediaAsset{}}
	fa.add(t, dir, "upload_a", probe.KindVideo)
	m := NewManager(fa, fakeProber{}, &fakeTranscoder{}, filepath.Join(dir, "out"), nil)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		job, err := m.Submit(editOf("upload_a"))
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Drain(ctx))
	for _, id := range ids {
		j, err := m.Get(id)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, j.State)
	}
}

func TestRunLogsFullCommandLine(t *testing.T) {
	dir := t.TempDir()
	fa := &fakeAssets{assets: map[string]assets.MediaAsset{}}
	src := fa.add(t, dir, "upload_a", probe.KindVideo)
	core, logs := observer.New(zap.DebugLevel)
	spawner := &manualSpawner{}
	m := NewManager(fa, fakeProber{}, &fakeTranscoder{}, filepath.Join(dir, "out"), zap.New(core), WithSpawner(spawner.spawn))

	job, err := m.Submit(editOf("upload_a"))
	require.NoError(t, err)
	spawner.runAll()

	entries := logs.FilterMessage("running ffmpeg").All()
	require.Len(t, entries, 1)
	cmd, ok := entries[0].ContextMap()["cmd"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(cmd, "ffmpeg -i "+src.Path+" "), cmd)
	assert.True(t, strings.HasSuffix(cmd, " -y "+filepath.Join(dir, "out", job.ID+".mp4")), cmd)
}

func TestWaitHonoursContext(t *testing.T) {
	env := newEnv(t)
	env.assets.add(t, env.dir, "upload_a", probe.KindVideo)
	job, err := env.manager.Submit(editOf("upload_a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = env.manager.Wait(ctx, job.ID)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = env.manager.Wait(context.Background(), "edit_unknown")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
