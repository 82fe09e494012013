// Package tts synthesizes voiceovers with ElevenLabs.
package tts

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

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoiceID = "EXAVITQu4vr4xnSDxMaL"
	modelID        = "eleven_monolingual_v1"
	maxErrorBody   = 4096
)

// Config configures the ElevenLabs client.
type Config struct {
	APIKey  string
	BaseURL string
	VoiceID string
	HTTP    *http.Client
}

// Client calls the text-to-speech endpoint.
type Client struct {
	key     string
	baseURL string
	voiceID string
	http    *http.Client
}

// NewClient creates an ElevenLabs client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoiceID
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		key:     strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		voiceID: cfg.VoiceID,
		http:    cfg.HTTP,
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MP3 audio for text. An empty voiceID uses the configured voice.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if c.key == "" {
		return nil, apperr.Wrap(apperr.ErrProvider, "elevenlabs", "api key not configured", nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Invalid("text required")
	}
	if voiceID == "" {
		voiceID = c.voiceID
	}
	payload, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       modelID,
		VoiceSettings: voiceSettings{Stability: 0.4, SimilarityBoost: 0.8},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/text-to-speech/"+voiceID, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: new request: %w", err)
	}
	req.Header.Set("xi-api-key", c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrProvider, "elevenlabs", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperr.Wrap(apperr.ErrProvider, "elevenlabs",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrProvider, "elevenlabs", "read audio", err)
	}
	return audio, nil
}
