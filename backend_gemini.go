package driftline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiBackend generates persona replies with the Gemini API.
// Implements StreamingBackend.
type GeminiBackend struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	config  *genai.GenerateContentConfig
}

// GeminiOption configures a GeminiBackend.
type GeminiOption func(*geminiSettings)

type geminiSettings struct {
	model   string
	baseURL string
	timeout time.Duration
}

// WithGeminiModel sets the model (default: gemini-2.5-flash-lite).
func WithGeminiModel(model string) GeminiOption {
	return func(s *geminiSettings) { s.model = model }
}

// WithGeminiBaseURL overrides the API endpoint. Useful for proxies and tests.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(s *geminiSettings) { s.baseURL = url }
}

// WithGeminiTimeout bounds each generation call (default: 30s).
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(s *geminiSettings) { s.timeout = d }
}

// NewGeminiBackend creates a hosted backend on the Gemini API.
func NewGeminiBackend(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key for gemini")
	}
	s := geminiSettings{model: "gemini-2.5-flash-lite", timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}

	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if s.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: s.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &GeminiBackend{
		client:  client,
		model:   s.model,
		timeout: s.timeout,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.7),
			TopP:            genai.Ptr[float32](0.85),
			MaxOutputTokens: 256,
		},
	}, nil
}

// Name identifies the backend and model for attribution.
func (b *GeminiBackend) Name() string { return "gemini/" + b.model }

// Generate returns the complete reply for an instruction.
func (b *GeminiBackend) Generate(ctx context.Context, instruction string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(instruction, genai.RoleUser)}
	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, b.config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return text, nil
}

// GenerateStream pushes each chunk to onToken as it arrives and returns the assembled text.
func (b *GeminiBackend) GenerateStream(ctx context.Context, instruction string, onToken func(string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(instruction, genai.RoleUser)}
	var full strings.Builder
	for chunk, err := range b.client.Models.GenerateContentStream(ctx, b.model, contents, b.config) {
		if err != nil {
			return full.String(), fmt.Errorf("gemini stream: %w", err)
		}
		if t := chunk.Text(); t != "" {
			full.WriteString(t)
			if onToken != nil {
				onToken(t)
			}
		}
	}
	return full.String(), nil
}
