// Package summarizer implements the Summarizer (spec.md §4.E): it calls an
// external LLM over HTTP to produce a compact replacement for a response
// body that exceeds the configured token threshold. The wire format is
// OpenAI-style chat/completions, grounded on bureau-foundation-bureau's
// lib/llm/openai.go (request/response JSON shape) and on
// other_examples/Compresr-ai-Context-Gateway's pattern of estimating tokens
// from body size when no real tokenizer is available.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clip-mcp/clip/internal/domain/policy"
	"github.com/clip-mcp/clip/internal/telemetry"
)

// LLMConfig is the connection configuration for the summarization LLM
// (spec.md §3 "llmConfig: {baseUrl, model, apiKey?}").
type LLMConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Result is the outcome of a successful summarization call.
type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Summarizer calls an external LLM to compress response text.
type Summarizer struct {
	httpClient *http.Client
	cfg        LLMConfig
}

// New creates a Summarizer bound to the given LLM endpoint.
func New(cfg LLMConfig) *Summarizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Summarizer{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
	}
}

// EstimateTokens is a stable, deterministic token-count approximation
// (~4 characters per token), used both for the compression-threshold
// decision and for populating PromptTokens when the upstream LLM omits
// usage data. It is not required to match any model's real tokenizer
// (spec.md §4.E), only to be deterministic.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Summarize sends text to the configured LLM and returns a compacted
// replacement. goal is the client-supplied high-level intent string, used
// only when pol.GoalAware is true; maxOutputTokens is the caller's already
// escalation-adjusted token budget for this call.
func (s *Summarizer) Summarize(ctx context.Context, text string, pol policy.CompressionPolicy, goal string, maxOutputTokens int) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "summarizer.summarize")
	defer span.End()

	prompt := buildPrompt(text, pol, goal)

	wireReq := chatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You compress tool call results for an MCP proxy. Preserve all information the caller is likely to need; drop formatting and redundancy."},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxOutputTokens,
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return Result{}, fmt.Errorf("encode summarizer request: %w", err)
	}

	endpoint := s.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build summarizer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("summarizer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read summarizer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("summarizer returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var wireResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return Result{}, fmt.Errorf("decode summarizer response: %w", err)
	}
	if len(wireResp.Choices) == 0 {
		return Result{}, fmt.Errorf("summarizer response had no choices")
	}

	summary := wireResp.Choices[0].Message.Content

	promptTokens := wireResp.Usage.PromptTokens
	completionTokens := wireResp.Usage.CompletionTokens
	if promptTokens == 0 {
		promptTokens = EstimateTokens(prompt)
	}
	if completionTokens == 0 {
		completionTokens = EstimateTokens(summary)
	}

	return Result{Text: summary, PromptTokens: promptTokens, CompletionTokens: completionTokens}, nil
}

func buildPrompt(text string, pol policy.CompressionPolicy, goal string) string {
	var b bytes.Buffer
	if pol.GoalAware && goal != "" {
		fmt.Fprintf(&b, "The caller's goal: %s\n\n", goal)
	}
	if pol.CustomInstructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n\n", pol.CustomInstructions)
	}
	b.WriteString("Response to compress:\n")
	b.WriteString(text)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
