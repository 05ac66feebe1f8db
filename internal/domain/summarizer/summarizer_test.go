package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clip-mcp/clip/internal/domain/policy"
)

func TestEstimateTokens_Deterministic(t *testing.T) {
	text := strings.Repeat("word ", 100)
	if EstimateTokens(text) != EstimateTokens(text) {
		t.Fatalf("expected deterministic estimate")
	}
	if EstimateTokens("") != 0 {
		t.Fatalf("expected 0 tokens for empty text")
	}
	if EstimateTokens("hi") == 0 {
		t.Fatalf("expected at least 1 token for non-empty text")
	}
}

func TestSummarize_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %s", req.Model)
		}
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: "compact summary"}}}
		resp.Usage.PromptTokens = 42
		resp.Usage.CompletionTokens = 3
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := New(LLMConfig{BaseURL: srv.URL, Model: "test-model"})
	pol := policy.CompressionPolicy{Enabled: true, MaxOutputTokens: 100}

	result, err := s.Summarize(context.Background(), "a very long response body", pol, "", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "compact summary" {
		t.Errorf("got %q", result.Text)
	}
	if result.PromptTokens != 42 || result.CompletionTokens != 3 {
		t.Errorf("got usage %+v", result)
	}
}

func TestSummarize_GoalAwarePrompt(t *testing.T) {
	var capturedPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			if m.Role == "user" {
				capturedPrompt = m.Content
			}
		}
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Content: "summary"}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := New(LLMConfig{BaseURL: srv.URL, Model: "m"})
	pol := policy.CompressionPolicy{Enabled: true, GoalAware: true}

	_, err := s.Summarize(context.Background(), "body", pol, "find the bug", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(capturedPrompt, "find the bug") {
		t.Errorf("expected goal to appear in prompt, got %q", capturedPrompt)
	}
}

func TestSummarize_Non2xxStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	s := New(LLMConfig{BaseURL: srv.URL, Model: "m"})
	pol := policy.CompressionPolicy{Enabled: true}

	_, err := s.Summarize(context.Background(), "body", pol, "", 50)
	if err == nil {
		t.Fatalf("expected error on non-2xx response")
	}
}

func TestSummarize_NoChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{})
	}))
	defer srv.Close()

	s := New(LLMConfig{BaseURL: srv.URL, Model: "m"})
	pol := policy.CompressionPolicy{Enabled: true}

	_, err := s.Summarize(context.Background(), "body", pol, "", 50)
	if err == nil {
		t.Fatalf("expected error when response has no choices")
	}
}
