// Package generate serves prompt-driven generation: video clips, chat replies and voiceovers.
package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aura-reels/backend/internal/assets"
	"github.com/aura-reels/backend/internal/probe"
	"github.com/aura-reels/backend/internal/providers/chat"
	"github.com/aura-reels/backend/internal/providers/videogen"
	"github.com/aura-reels/backend/pkg/apperr"
)

const (
	scriptMaxTokens = 500
	scriptMaxChars  = 500
	chatMaxTokens   = 4096
	chatVideoLength = 5
)

var allowedDurations = map[int]bool{5: true, 10: true}

// videoKeywords route a chat prompt to video generation.
var videoKeywords = []string{
	"video", "generate video", "create video", "animation", "animate",
	"show me", "visualize", "render", "movie",
}

// Completer produces chat completions.
type Completer interface {
	Complete(ctx context.Context, req chat.Request) (string, error)
}

// Generators resolves video generators by model name.
type Generators interface {
	Lookup(model string) (videogen.Generator, error)
	Default() (videogen.Generator, error)
}

// Synthesizer turns text into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Registrar stores media produced by providers.
type Registrar interface {
	Register(ctx context.Context, src assets.Source) (assets.MediaAsset, error)
}

// Fetcher downloads a generated clip.
type Fetcher func(ctx context.Context, url string) (io.ReadCloser, string, error)

// Observer records provider calls (metrics).
type Observer interface {
	ProviderCall(provider, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ProviderCall(string, string, time.Duration) {}

// VideoRequest is the body of POST /generate/video.
type VideoRequest struct {
	Prompt   string `json:"prompt" binding:"required"`
	Duration int    `json:"duration"`
	Model    string `json:"model"`
	Save     bool   `json:"save"`
}

// VideoResult is the body returned by POST /generate/video.
type VideoResult struct {
	Status   string  `json:"status"`
	VideoURL string  `json:"video_url,omitempty"`
	Script   string  `json:"script,omitempty"`
	Error    string  `json:"error,omitempty"`
	Credits  float64 `json:"credits"`
	AssetID  string  `json:"asset_id,omitempty"`
}

// ChatResult is the body returned by POST /chat. Exactly one field is set.
type ChatResult struct {
	VideoURL     string `json:"video_url,omitempty"`
	TextResponse string `json:"text_response,omitempty"`
}

// Service wires the providers to the asset registry.
type Service struct {
	chat       Completer
	generators Generators
	speech     Synthesizer
	registry   Registrar
	fetch      Fetcher
	observer   Observer
	log        *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithFetcher replaces how saved clips are downloaded.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetch = f
		}
	}
}

// WithObserver reports provider calls to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewService creates a generation service.
func NewService(completer Completer, generators Generators, speech Synthesizer, registry Registrar, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		chat:       completer,
		generators: generators,
		speech:     speech,
		registry:   registry,
		fetch: func(ctx context.Context, url string) (io.ReadCloser, string, error) {
			return videogen.Fetch(ctx, nil, url)
		},
		observer: nopObserver{},
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks a video request before any provider is called.
func (s *Service) Validate(req VideoRequest) (videogen.Generator, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperr.Invalid("prompt required")
	}
	if !allowedDurations[req.Duration] {
		return nil, apperr.Invalid("duration must be 5 or 10 seconds, got %d", req.Duration)
	}
	if req.Model == "" {
		return s.generators.Default()
	}
	return s.generators.Lookup(req.Model)
}

// Video writes a script, generates a clip from it and optionally saves it as an editable asset.
// The user prompt is sent to the provider only when no script could be written.
// A failed generation returns the partial result alongside the error.
func (s *Service) Video(ctx context.Context, req VideoRequest) (VideoResult, error) {
	gen, err := s.Validate(req)
	if err != nil {
		return VideoResult{}, err
	}
	script := s.script(ctx, req.Prompt)
	prompt := script
	if prompt == "" {
		prompt = req.Prompt
	}

	started := time.Now()
	res, err := gen.Generate(ctx, videogen.Request{Prompt: prompt, Duration: req.Duration})
	s.observe(gen.Name(), started, err)
	if err != nil {
		s.log.Error("video generation failed", zap.String("provider", gen.Name()), zap.Error(err))
		return VideoResult{Status: "failed", Script: script, Error: err.Error()}, err
	}
	out := VideoResult{Status: "success", VideoURL: res.VideoURL, Script: script, Credits: res.Credits}
	s.log.Info("video generated", zap.String("provider", gen.Name()), zap.String("task_id", res.TaskID))

	if req.Save {
		asset, err := s.save(ctx, res)
		if err != nil {
			s.log.Error("save generated video failed", zap.String("url", res.VideoURL), zap.Error(err))
			out.Status, out.Error = "failed", err.Error()
			return out, err
		}
		out.AssetID = asset.ID
	}
	return out, nil
}

// script asks the chat model for a short video script. Failures leave the script empty.
func (s *Service) script(ctx context.Context, prompt string) string {
	started := time.Now()
	text, err := s.chat.Complete(ctx, chat.Request{
		Messages:  chat.Prompt("Create a short video script for: " + prompt),
		MaxTokens: scriptMaxTokens,
	})
	s.observe("chat", started, err)
	if err != nil {
		s.log.Warn("script generation failed", zap.Error(err))
		return ""
	}
	return truncate(strings.TrimSpace(text), scriptMaxChars)
}

func (s *Service) save(ctx context.Context, res videogen.Result) (assets.MediaAsset, error) {
	body, contentType, err := s.fetch(ctx, res.VideoURL)
	if err != nil {
		return assets.MediaAsset{}, err
	}
	defer body.Close()
	name := res.TaskID
	if name == "" {
		name = res.Provider
	}
	asset, err := s.registry.Register(ctx, assets.Source{
		Kind:        probe.KindVideo,
		Prefix:      assets.PrefixGenerated,
		Filename:    fmt.Sprintf("%s_%s.mp4", res.Provider, name),
		ContentType: contentType,
		Body:        body,
	})
	if err != nil {
		return assets.MediaAsset{}, fmt.Errorf("register generated video: %w", err)
	}
	return asset, nil
}

// IsVideoPrompt reports whether a chat prompt asks for a video.
func IsVideoPrompt(prompt string) bool {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	for _, kw := range videoKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Chat answers a prompt with either a generated clip or streamed text.
func (s *Service) Chat(ctx context.Context, prompt string) (ChatResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ChatResult{}, apperr.Invalid("prompt required")
	}
	if IsVideoPrompt(prompt) {
		gen, err := s.generators.Default()
		if err != nil {
			return ChatResult{}, err
		}
		started := time.Now()
		res, err := gen.Generate(ctx, videogen.Request{Prompt: prompt, Duration: chatVideoLength})
		s.observe(gen.Name(), started, err)
		if err != nil {
			return ChatResult{}, err
		}
		return ChatResult{VideoURL: res.VideoURL}, nil
	}

	started := time.Now()
	text, err := s.chat.Complete(ctx, chat.Request{
		Messages:    chat.Prompt(prompt),
		MaxTokens:   chatMaxTokens,
		Temperature: 0.6,
		TopP:        0.95,
	})
	s.observe("chat", started, err)
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{TextResponse: text}, nil
}

// Speech synthesizes text and stores it as a voice asset usable as a music overlay.
func (s *Service) Speech(ctx context.Context, text, voiceID string) (assets.MediaAsset, error) {
	started := time.Now()
	audio, err := s.speech.Synthesize(ctx, text, voiceID)
	s.observe("elevenlabs", started, err)
	if err != nil {
		return assets.MediaAsset{}, err
	}
	asset, err := s.registry.Register(ctx, assets.Source{
		Kind:        probe.KindAudio,
		Prefix:      assets.PrefixVoice,
		Filename:    "voiceover.mp3",
		ContentType: "audio/mpeg",
		Body:        bytes.NewReader(audio),
	})
	if err != nil {
		return assets.MediaAsset{}, fmt.Errorf("register voiceover: %w", err)
	}
	return asset, nil
}

func (s *Service) observe(provider string, started time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	s.observer.ProviderCall(provider, outcome, time.Since(started))
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
