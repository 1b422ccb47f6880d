package driftline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// AnthropicBackend generates persona replies via the Anthropic Messages API.
// Implements Backend. Requests are paced by a token-bucket limiter.
type AnthropicBackend struct {
	apiKey    string
	model     string
	baseURL   string
	version   string
	maxTokens int
	limiter   *rate.Limiter
	client    *http.Client
}

// AnthropicOption configures an AnthropicBackend.
type AnthropicOption func(*AnthropicBackend)

// WithAnthropicModel sets the model (default: claude-3-5-haiku-latest).
func WithAnthropicModel(model string) AnthropicOption {
	return func(b *AnthropicBackend) { b.model = model }
}

// WithAnthropicBaseURL sets the API base URL (default: https://api.anthropic.com).
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(b *AnthropicBackend) { b.baseURL = strings.TrimRight(url, "/") }
}

// WithAnthropicRate sets requests per second (default: 1, burst 1). Zero disables pacing.
func WithAnthropicRate(perSecond float64) AnthropicOption {
	return func(b *AnthropicBackend) {
		if perSecond <= 0 {
			b.limiter = nil
			return
		}
		b.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithAnthropicTimeout sets the HTTP client timeout (default: 30s).
func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(b *AnthropicBackend) { b.client.Timeout = d }
}

// NewAnthropicBackend creates a remote backend for the Anthropic Messages API.
func NewAnthropicBackend(apiKey string, opts ...AnthropicOption) *AnthropicBackend {
	b := &AnthropicBackend{
		apiKey:    apiKey,
		model:     "claude-3-5-haiku-latest",
		baseURL:   "https://api.anthropic.com",
		version:   "2023-06-01",
		maxTokens: 400,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name identifies the backend and model for attribution.
func (b *AnthropicBackend) Name() string { return "anthropic/" + b.model }

// Generate sends the instruction as a single user message.
func (b *AnthropicBackend) Generate(ctx context.Context, instruction string) (string, error) {
	if b.apiKey == "" {
		return "", fmt.Errorf("no API key")
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqBody := anthropicRequest{
		Model:     b.model,
		System:    anthropicSystemPrompt,
		MaxTokens: b.maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: instruction},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", b.version)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic messages %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty completion returned")
	}
	return text.String(), nil
}

const anthropicSystemPrompt = "You are role-playing a client in an occupational therapy training session. " +
	"Respond only as the client, with one reply, then stop. Never write the student's side of the conversation."

// --- Anthropic Messages API types ---

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}
