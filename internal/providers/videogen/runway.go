package videogen

import (
	"context"
	"net/http"
	"time"
)

const (
	runwayBaseURL      = "https://api.dev.runwayml.com"
	runwayVersion      = "2024-11-06"
	runwayPollInterval = 5 * time.Second
	runwayCreditsPerS  = 5
)

// RunwayConfig configures the Runway text-to-video backend.
type RunwayConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Ratio   string
	Polling Polling
	HTTP    *http.Client
}

// Runway generates clips with the Runway tasks API.
type Runway struct {
	api     apiClient
	key     string
	model   string
	ratio   string
	polling Polling
}

// NewRunway creates a Runway generator.
func NewRunway(cfg RunwayConfig) *Runway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = runwayBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gen4_turbo"
	}
	if cfg.Ratio == "" {
		cfg.Ratio = "720:1280"
	}
	headers := map[string]string{
		"Authorization":    "Bearer " + cfg.APIKey,
		"X-Runway-Version": runwayVersion,
	}
	return &Runway{
		api:     newAPIClient("runway", cfg.BaseURL, headers, cfg.HTTP),
		key:     cfg.APIKey,
		model:   cfg.Model,
		ratio:   cfg.Ratio,
		polling: cfg.Polling.withDefaults(runwayPollInterval),
	}
}

// Name implements Generator.
func (r *Runway) Name() string { return ModelRunway }

type runwayCreate struct {
	Model      string `json:"model"`
	PromptText string `json:"promptText"`
	Ratio      string `json:"ratio"`
	Duration   int    `json:"duration"`
}

type runwayTask struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"` // PENDING, THROTTLED, RUNNING, SUCCEEDED, FAILED, CANCELLED
	Output  []string `json:"output"`
	Failure string   `json:"failure"`
}

// Generate implements Generator.
func (r *Runway) Generate(ctx context.Context, req Request) (Result, error) {
	if r.key == "" {
		return Result{}, r.api.missingKey()
	}
	var created runwayTask
	err := r.api.do(ctx, http.MethodPost, "/v1/text_to_video", runwayCreate{
		Model:      r.model,
		PromptText: req.Prompt,
		Ratio:      r.ratio,
		Duration:   req.Duration,
	}, &created)
	if err != nil {
		return Result{}, err
	}

	if created.ID == "" {
		return Result{}, r.api.missingTaskID()
	}
	var task runwayTask
	err = poll(ctx, r.api.provider, created.ID, r.polling, func(ctx context.Context) (bool, error) {
		task = runwayTask{}
		if err := r.api.do(ctx, http.MethodGet, "/v1/tasks/"+created.ID, nil, &task); err != nil {
			return false, err
		}
		switch task.Status {
		case "SUCCEEDED":
			if len(task.Output) == 0 {
				return false, providerFailure(r.api.provider, created.ID, "no output")
			}
			return true, nil
		case "FAILED", "CANCELLED":
			return false, providerFailure(r.api.provider, created.ID, task.Failure)
		}
		return false, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Provider: r.Name(),
		TaskID:   created.ID,
		VideoURL: task.Output[0],
		Credits:  float64(req.Duration * runwayCreditsPerS),
	}, nil
}
