package videogen

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	replicateBaseURL      = "https://api.replicate.com/v1"
	replicatePollInterval = 2 * time.Second
)

// ReplicateConfig configures the Replicate predictions backend.
type ReplicateConfig struct {
	Token   string
	BaseURL string
	Model   string // owner/name
	Polling Polling
	HTTP    *http.Client
}

// Replicate generates clips with the Replicate predictions API.
type Replicate struct {
	api     apiClient
	token   string
	model   string
	polling Polling
}

// NewReplicate creates a Replicate generator.
func NewReplicate(cfg ReplicateConfig) *Replicate {
	if cfg.BaseURL == "" {
		cfg.BaseURL = replicateBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "luma/ray-flash-2-720p"
	}
	return &Replicate{
		api:     newAPIClient("replicate", cfg.BaseURL, map[string]string{"Authorization": "Bearer " + cfg.Token}, cfg.HTTP),
		token:   cfg.Token,
		model:   cfg.Model,
		polling: cfg.Polling.withDefaults(replicatePollInterval),
	}
}

// Name implements Generator.
func (r *Replicate) Name() string { return ModelReplicate }

type replicateCreate struct {
	Input replicateInput `json:"input"`
}

type replicateInput struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

type replicatePrediction struct {
	ID      string           `json:"id"`
	Status  string           `json:"status"` // starting, processing, succeeded, failed, canceled
	Output  json.RawMessage  `json:"output"`
	Error   any              `json:"error"`
	Metrics replicateMetrics `json:"metrics"`
}

type replicateMetrics struct {
	PredictTime float64 `json:"predict_time"`
}

// videoURL accepts the two output shapes video models use: a URL or a list of URLs.
func (p replicatePrediction) videoURL() string {
	var one string
	if err := json.Unmarshal(p.Output, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[len(many)-1]
	}
	return ""
}

// Generate implements Generator.
func (r *Replicate) Generate(ctx context.Context, req Request) (Result, error) {
	if r.token == "" {
		return Result{}, r.api.missingKey()
	}
	var pred replicatePrediction
	err := r.api.do(ctx, http.MethodPost, "/models/"+r.model+"/predictions",
		replicateCreate{Input: replicateInput{Prompt: req.Prompt, Duration: req.Duration}}, &pred)
	if err != nil {
		return Result{}, err
	}

	id := pred.ID
	if id == "" {
		return Result{}, r.api.missingTaskID()
	}
	err = poll(ctx, r.api.provider, id, r.polling, func(ctx context.Context) (bool, error) {
		pred = replicatePrediction{}
		if err := r.api.do(ctx, http.MethodGet, "/predictions/"+id, nil, &pred); err != nil {
			return false, err
		}
		switch pred.Status {
		case "succeeded":
			if pred.videoURL() == "" {
				return false, providerFailure(r.api.provider, id, "no output")
			}
			return true, nil
		case "failed", "canceled":
			reason := ""
			if pred.Error != nil {
				reason = toString(pred.Error)
			}
			return false, providerFailure(r.api.provider, id, reason)
		}
		return false, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Provider: r.Name(), TaskID: id, VideoURL: pred.videoURL(), Credits: pred.Metrics.PredictTime}, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}
