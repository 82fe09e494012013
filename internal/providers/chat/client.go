// Package chat talks to an OpenAI-compatible chat completion endpoint over SSE.
package chat

import (
	"bufio"
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
	defaultBaseURL     = "https://integrate.api.nvidia.com/v1"
	defaultModel       = "nvidia/llama-3.3-nemotron-super-49b-v1"
	defaultHTTPTimeout = 120 * time.Second
	maxErrorBody       = 4096
)

// SystemPrompt frames every chat and script request.
const SystemPrompt = `You are CONTENT CREATOR, a content production expert for short-form video.
Write hooks that land in the first three seconds, keep pacing tight, and adapt tone to the platform
(TikTok, Instagram Reels, YouTube Shorts). Include visual direction when it helps: shots, transitions,
on-screen text and music cues. Be specific and actionable.`

// Config points the client at an endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request. Zero sampling fields use the endpoint defaults.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Chunk is one streamed delta. A chunk with Err ends the stream.
type Chunk struct {
	Content      string
	FinishReason string
	Err          error
}

// Client streams chat completions.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a chat client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: defaultHTTPTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prompt builds the system + user message pair used by every caller.
func Prompt(user string) []Message {
	return []Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: user},
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
}

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Stream starts a streaming completion. The returned channel is closed when the stream ends.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if c.cfg.APIKey == "" {
		return nil, apperr.Wrap(apperr.ErrProvider, "chat", "api key not configured", nil)
	}
	if len(req.Messages) == 0 {
		return nil, apperr.Invalid("chat: at least one message required")
	}
	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("chat: new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrProvider, "chat", "request failed", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperr.Wrap(apperr.ErrProvider, "chat",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	return readStream(ctx, resp.Body), nil
}

func readStream(ctx context.Context, body io.ReadCloser) <-chan Chunk {
	ch := make(chan Chunk)
	go func() {
		defer body.Close()
		defer close(ch)
		send := func(chunk Chunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- chunk:
				return true
			}
		}
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
				if err != io.EOF {
					send(Chunk{Err: apperr.Wrap(apperr.ErrProvider, "chat", "read stream", err)})
				}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var event streamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				send(Chunk{Err: apperr.Wrap(apperr.ErrProvider, "chat", "decode event", err)})
				return
			}
			if event.Error != nil {
				send(Chunk{Err: apperr.Wrap(apperr.ErrProvider, "chat", event.Error.Message, nil)})
				return
			}
			for _, choice := range event.Choices {
				if choice.Delta.Content == nil && choice.FinishReason == "" {
					continue
				}
				chunk := Chunk{FinishReason: choice.FinishReason}
				if choice.Delta.Content != nil {
					chunk.Content = *choice.Delta.Content
				}
				if !send(chunk) {
					return
				}
			}
		}
	}()
	return ch
}

// Complete streams a completion and returns the concatenated text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	ch, err := c.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		sb.WriteString(chunk.Content)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
