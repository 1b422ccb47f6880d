package driftline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicBackendGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing version header")
		}

		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "claude-test" {
			t.Errorf("expected claude-test, got %s", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "Student: Hi\nJack:" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.System == "" {
			t.Error("expected a system prompt")
		}

		w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"Hey. "},{"type":"tool_use"},{"type":"text","text":"What's this about?"}]}`))
	}))
	defer srv.Close()

	b := NewAnthropicBackend("test-key",
		WithAnthropicModel("claude-test"),
		WithAnthropicBaseURL(srv.URL),
		WithAnthropicRate(0))
	if b.Name() != "anthropic/claude-test" {
		t.Errorf("unexpected name %s", b.Name())
	}
	got, err := b.Generate(context.Background(), "Student: Hi\nJack:")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hey. What's this about?" {
		t.Errorf("got %q", got)
	}
}

func TestAnthropicBackendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewAnthropicBackend("k", WithAnthropicBaseURL(srv.URL), WithAnthropicRate(0))
	if _, err := b.Generate(context.Background(), "hi"); err == nil {
		t.Error("expected error for HTTP 429")
	}
}

func TestAnthropicBackendEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"msg_1","content":[]}`))
	}))
	defer srv.Close()

	b := NewAnthropicBackend("k", WithAnthropicBaseURL(srv.URL), WithAnthropicRate(0))
	if _, err := b.Generate(context.Background(), "hi"); err == nil {
		t.Error("expected error for empty completion")
	}
}

func TestAnthropicBackendNoKey(t *testing.T) {
	b := NewAnthropicBackend("")
	if _, err := b.Generate(context.Background(), "hi"); err == nil {
		t.Error("expected error without API key")
	}
}

func TestAnthropicBackendRateWaitCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	b := NewAnthropicBackend("k", WithAnthropicBaseURL(srv.URL), WithAnthropicRate(0.001))
	if _, err := b.Generate(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Generate(ctx, "second"); err == nil {
		t.Error("expected rate limiter to fail on canceled context")
	}
}
