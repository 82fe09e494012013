// Package videogen generates short clips through hosted text-to-video APIs.
package videogen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aura-reels/backend/pkg/apperr"
)

// Model names accepted by POST /generate/video.
const (
	ModelRunway    = "runwayml"
	ModelLuma      = "luma"
	ModelReplicate = "replicate"
)

const (
	defaultPollAttempts = 60
	defaultHTTPTimeout  = 60 * time.Second
	maxErrorBody        = 4096
)

// Request asks for one clip.
type Request struct {
	Prompt   string
	Duration int // seconds
}

// Result is a finished generation.
type Result struct {
	Provider string
	TaskID   string
	VideoURL string
	Credits  float64
}

// Generator produces a clip from a prompt, blocking until the provider finishes.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (Result, error)
}

// Polling bounds how long an async generation is awaited.
type Polling struct {
	Attempts int
	Interval time.Duration
}

func (p Polling) withDefaults(interval time.Duration) Polling {
	if p.Attempts <= 0 {
		p.Attempts = defaultPollAttempts
	}
	if p.Interval <= 0 {
		p.Interval = interval
	}
	return p
}

// poll calls check until it reports done, fails, or the attempt budget runs out.
func poll(ctx context.Context, provider, taskID string, p Polling, check func(ctx context.Context) (bool, error)) error {
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == p.Attempts {
			break
		}
		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return apperr.Wrap(apperr.ErrTimeout, provider,
		fmt.Sprintf("generation %s not finished after %d polls", taskID, p.Attempts), nil)
}

// apiClient is the JSON-over-HTTP plumbing shared by every provider.
type apiClient struct {
	provider string
	baseURL  string
	headers  map[string]string
	http     *http.Client
}

func newAPIClient(provider, baseURL string, headers map[string]string, hc *http.Client) apiClient {
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return apiClient{provider: provider, baseURL: strings.TrimRight(baseURL, "/"), headers: headers, http: hc}
}

func (c apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", c.provider, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: new request: %w", c.provider, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrProvider, c.provider, "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperr.Wrap(apperr.ErrProvider, c.provider,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.ErrProvider, c.provider, "decode response", err)
	}
	return nil
}

func providerFailure(provider, id, reason string) error {
	if reason == "" {
		reason = "unknown reason"
	}
	return apperr.Wrap(apperr.ErrProvider, provider, "generation "+id+" failed: "+reason, nil)
}

func (c apiClient) missingTaskID() error {
	return apperr.Wrap(apperr.ErrProvider, c.provider, "create response has no task id", nil)
}

func (c apiClient) missingKey() error {
	return apperr.Wrap(apperr.ErrProvider, c.provider, "api key not configured", nil)
}

// Registry maps model names to generators.
type Registry struct {
	generators   map[string]Generator
	defaultModel string
}

// NewRegistry creates a registry whose Default is defaultModel.
func NewRegistry(defaultModel string) *Registry {
	return &Registry{generators: make(map[string]Generator), defaultModel: strings.ToLower(defaultModel)}
}

// Register binds model to g.
func (r *Registry) Register(model string, g Generator) {
	r.generators[strings.ToLower(model)] = g
}

// Lookup returns the generator for model.
func (r *Registry) Lookup(model string) (Generator, error) {
	g, ok := r.generators[strings.ToLower(strings.TrimSpace(model))]
	if !ok {
		return nil, apperr.Invalid("unsupported model %q", model)
	}
	return g, nil
}

// Default returns the generator used when a caller names no model.
func (r *Registry) Default() (Generator, error) {
	return r.Lookup(r.defaultModel)
}

// Fetch downloads a generated clip.
func Fetch(ctx context.Context, hc *http.Client, url string) (io.ReadCloser, string, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch video: new request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.ErrProvider, "fetch video", "request failed", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()
		return nil, "", apperr.Wrap(apperr.ErrProvider, "fetch video", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "video/") {
		contentType = "video/mp4"
	}
	return resp.Body, contentType, nil
}
