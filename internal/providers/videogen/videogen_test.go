package videogen

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-reels/backend/pkg/apperr"
)

var fast = Polling{Attempts: 3, Interval: time.Millisecond}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestRunwayPollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer rw-key", r.Header.Get("Authorization"))
		assert.Equal(t, runwayVersion, r.Header.Get("X-Runway-Version"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/text_to_video":
			var body runwayCreate
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "tide pools at dawn", body.PromptText)
			assert.Equal(t, 10, body.Duration)
			writeJSON(w, runwayTask{ID: "task-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/tasks/task-1":
			if polls.Add(1) < 2 {
				writeJSON(w, runwayTask{ID: "task-1", Status: "RUNNING"})
				return
			}
			writeJSON(w, runwayTask{ID: "task-1", Status: "SUCCEEDED", Output: []string{"https://cdn.example/clip.mp4"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewRunway(RunwayConfig{APIKey: "rw-key", BaseURL: srv.URL, Polling: fast})
	res, err := g.Generate(context.Background(), Request{Prompt: "tide pools at dawn", Duration: 10})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/clip.mp4", res.VideoURL)
	assert.Equal(t, ModelRunway, res.Provider)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, 50.0, res.Credits)
	assert.EqualValues(t, 2, polls.Load())
}

func TestRunwayFailureAndTimeout(t *testing.T) {
	status := "FAILED"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, runwayTask{ID: "t"})
			return
		}
		writeJSON(w, runwayTask{ID: "t", Status: status, Failure: "content moderation"})
	}))
	defer srv.Close()
	g := NewRunway(RunwayConfig{APIKey: "k", BaseURL: srv.URL, Polling: fast})

	_, err := g.Generate(context.Background(), Request{Prompt: "x", Duration: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrProvider)
	assert.Contains(t, err.Error(), "content moderation")

	status = "PENDING"
	_, err = g.Generate(context.Background(), Request{Prompt: "x", Duration: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.Contains(t, err.Error(), "after 3 polls")
}

func TestProviderHTTPErrorsAndMissingKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient credits", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	gens := []Generator{
		NewRunway(RunwayConfig{APIKey: "k", BaseURL: srv.URL, Polling: fast}),
		NewLuma(LumaConfig{APIKey: "k", BaseURL: srv.URL, Polling: fast}),
		NewReplicate(ReplicateConfig{Token: "k", BaseURL: srv.URL, Polling: fast}),
	}
	for _, g := range gens {
		_, err := g.Generate(context.Background(), Request{Prompt: "x", Duration: 5})
		require.Error(t, err, g.Name())
		assert.ErrorIs(t, err, apperr.ErrProvider)
		assert.Contains(t, err.Error(), "insufficient credits")
	}

	unkeyed := []Generator{NewRunway(RunwayConfig{}), NewLuma(LumaConfig{}), NewReplicate(ReplicateConfig{})}
	for _, g := range unkeyed {
		_, err := g.Generate(context.Background(), Request{Prompt: "x", Duration: 5})
		assert.ErrorIs(t, err, apperr.ErrProvider, g.Name())
	}
}

func TestLumaGeneration(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/generations":
			var body lumaCreate
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "5s", body.Duration)
			assert.Equal(t, "9:16", body.AspectRatio)
			writeJSON(w, map[string]any{"id": "gen-7", "state": "queued"})
		case r.URL.Path == "/generations/gen-7":
			if polls.Add(1) == 1 {
				writeJSON(w, map[string]any{"id": "gen-7", "state": "dreaming"})
				return
			}
			writeJSON(w, map[string]any{"id": "gen-7", "state": "completed", "assets": map[string]string{"video": "https://luma.example/v.mp4"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, err := NewLuma(LumaConfig{APIKey: "k", BaseURL: srv.URL, Polling: fast}).Generate(context.Background(), Request{Prompt: "x", Duration: 5})
	require.NoError(t, err)
	assert.Equal(t, "https://luma.example/v.mp4", res.VideoURL)
	assert.Equal(t, "gen-7", res.TaskID)
}

func TestLumaPollDropsStaleFields(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			writeJSON(w, map[string]any{"id": "gen-8", "state": "queued"})
		case polls.Add(1) == 1:
			writeJSON(w, map[string]any{"id": "gen-8", "state": "dreaming", "assets": map[string]string{"video": "https://luma.example/preview.mp4"}})
		default:
			writeJSON(w, map[string]any{"id": "gen-8", "state": "completed"})
		}
	}))
	defer srv.Close()

	_, err := NewLuma(LumaConfig{APIKey: "k", BaseURL: srv.URL, Polling: fast}).Generate(context.Background(), Request{Prompt: "x", Duration: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrProvider)
	assert.Contains(t, err.Error(), "no video asset")
}

func TestCreateWithoutTaskIDFailsFast(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		writeJSON(w, map[string]any{"state": "queued", "status": "starting"})
	}))
	defer srv.Close()

	gens := []Generator{
		NewLuma(LumaConfig{APIKey: "k", BaseURL: srv.URL, Polling: fast}),
		NewRunway(RunwayConfig{APIKey: "k", BaseURL: srv.URL, Polling: fast}),
		NewReplicate(ReplicateConfig{Token: "k", BaseURL: srv.URL, Polling: fast}),
	}
	for _, g := range gens {
		_, err := g.Generate(context.Background(), Request{Prompt: "x", Duration: 5})
		assert.ErrorIs(t, err, apperr.ErrProvider, g.Name())
		assert.ErrorContains(t, err, "no task id", g.Name())
	}
	assert.Zero(t, gets.Load())
}

func TestReplicatePrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/models/luma/ray-flash-2-720p/predictions":
			writeJSON(w, map[string]any{"id": "p1", "status": "starting"})
		case r.URL.Path == "/predictions/p1":
			writeJSON(w, json.RawMessage(`{"id":"p1","status":"succeeded",`+
				`"output":["https://replicate.example/a.mp4","https://replicate.example/b.mp4"],`+
				`"metrics":{"predict_time":41.5}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, err := NewReplicate(ReplicateConfig{Token: "k", BaseURL: srv.URL, Polling: fast}).Generate(context.Background(), Request{Prompt: "x", Duration: 5})
	require.NoError(t, err)
	assert.Equal(t, "https://replicate.example/b.mp4", res.VideoURL)
	assert.Equal(t, 41.5, res.Credits)
}

func TestReplicateOutputShapes(t *testing.T) {
	assert.Equal(t, "u", replicatePrediction{Output: json.RawMessage(`"u"`)}.videoURL())
	assert.Equal(t, "", replicatePrediction{Output: json.RawMessage(`[]`)}.videoURL())
	assert.Equal(t, "", replicatePrediction{}.videoURL())
}

type namedGen string

func (n namedGen) Name() string { return string(n) }
func (n namedGen) Generate(context.Context, Request) (Result, error) {
	return Result{Provider: string(n)}, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry("LUMA")
	reg.Register(ModelRunway, namedGen(ModelRunway))
	reg.Register(ModelLuma, namedGen(ModelLuma))

	g, err := reg.Lookup(" RunwayML ")
	require.NoError(t, err)
	assert.Equal(t, ModelRunway, g.Name())

	g, err = reg.Default()
	require.NoError(t, err)
	assert.Equal(t, ModelLuma, g.Name())

	_, err = reg.Lookup("fal_ai")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPollHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := poll(ctx, "test", "id", Polling{Attempts: 10, Interval: time.Hour}, func(context.Context) (bool, error) {
		calls++
		cancel()
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	body, ct, err := Fetch(context.Background(), nil, srv.URL+"/clip.mp4")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))
	assert.Equal(t, "video/mp4", ct)

	_, _, err = Fetch(context.Background(), nil, srv.URL+"/missing")
	assert.ErrorIs(t, err, apperr.ErrProvider)
}
