package driftline

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
)

// OllamaBackend generates persona replies via a local Ollama server.
// Implements StreamingBackend. No API key required.
type OllamaBackend struct {
	host    string
	model   string
	options ollamaOptions
	client  *http.Client
}

// OllamaOption configures an OllamaBackend.
type OllamaOption func(*OllamaBackend)

// WithOllamaHost sets the Ollama server URL (default: http://localhost:11434).
func WithOllamaHost(host string) OllamaOption {
	return func(b *OllamaBackend) { b.host = strings.TrimRight(host, "/") }
}

// WithOllamaTimeout sets the HTTP client timeout (default: 60s).
func WithOllamaTimeout(d time.Duration) OllamaOption {
	return func(b *OllamaBackend) { b.client.Timeout = d }
}

// NewOllamaBackend creates a hosted backend for a local Ollama model.
// The model must be already pulled (e.g., "llama3.2", "tinyllama").
func NewOllamaBackend(model string, opts ...OllamaOption) *OllamaBackend {
	b := &OllamaBackend{
		host:  "http://localhost:11434",
		model: model,
		// Short replies, mild sampling.
		options: ollamaOptions{
			Temperature:   0.7,
			TopP:          0.85,
			NumPredict:    70,
			RepeatPenalty: 1.1,
		},
		client: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name identifies the backend and model for attribution.
func (b *OllamaBackend) Name() string { return "ollama/" + b.model }

// Generate returns the complete reply for an instruction.
func (b *OllamaBackend) Generate(ctx context.Context, instruction string) (string, error) {
	resp, err := b.post(ctx, instruction, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama generate: %s", out.Error)
	}
	return out.Response, nil
}

// GenerateStream pushes each chunk to onToken as it arrives and returns the assembled text.
func (b *OllamaBackend) GenerateStream(ctx context.Context, instruction string, onToken func(string)) (string, error) {
	resp, err := b.post(ctx, instruction, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return full.String(), fmt.Errorf("decode chunk: %w", err)
		}
		if chunk.Error != "" {
			return full.String(), fmt.Errorf("ollama generate: %s", chunk.Error)
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if onToken != nil {
				onToken(chunk.Response)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("read stream: %w", err)
	}
	return full.String(), nil
}

func (b *OllamaBackend) post(ctx context.Context, instruction string, stream bool) (*http.Response, error) {
	reqBody := ollamaGenerateRequest{
		Model:   b.model,
		Prompt:  instruction,
		Stream:  stream,
		Options: b.options,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.host+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama generate %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}
	return resp, nil
}

// --- Ollama Generate API types ---

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	NumPredict    int     `json:"num_predict"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}
