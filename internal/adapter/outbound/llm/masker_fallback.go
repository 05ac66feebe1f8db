// Package llm adapts external chat-completion endpoints to CLIP's domain
// ports. MaskerFallback implements masker.LLMFallback the same way
// summarizer.Summarizer talks to its LLM — an OpenAI-style chat/completions
// POST — since spec.md §3 gives both the summarizer and the masker's
// fallback pass the identical llmConfig shape ({baseUrl, model, apiKey?}).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clip-mcp/clip/internal/domain/summarizer"
	"github.com/clip-mcp/clip/internal/telemetry"
)

// MaskerFallback calls an external LLM to extract and redact PII the regex
// pass missed or flagged as low confidence (spec.md §4.D).
type MaskerFallback struct {
	httpClient *http.Client
	cfg        summarizer.LLMConfig
}

// NewMaskerFallback creates a MaskerFallback bound to the given LLM endpoint.
// cfg reuses summarizer.LLMConfig since the wire shape is identical.
func NewMaskerFallback(cfg summarizer.LLMConfig) *MaskerFallback {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MaskerFallback{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        summarizer.LLMConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey, Timeout: timeout},
	}
}

// Redact asks the LLM to find and replace any remaining instances of the
// given PII types, returning the rewritten text and how many replacements
// it made: the number of "[REDACTED_" tokens in the rewrite beyond those
// already present in text, never below zero.
func (f *MaskerFallback) Redact(ctx context.Context, text string, piiTypes []string) (string, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "masker.llm_fallback")
	defer span.End()

	prompt := buildRedactionPrompt(text, piiTypes)

	wireReq := chatCompletionRequest{
		Model: f.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You find and redact personally identifiable information an automated regex pass may have missed. Replace each instance with a bracketed token naming its type, e.g. [REDACTED_EMAIL]. Return only the rewritten text."},
			{Role: "user", Content: prompt},
		},
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return text, 0, fmt.Errorf("encode masker fallback request: %w", err)
	}

	endpoint := f.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return text, 0, fmt.Errorf("build masker fallback request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if f.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return text, 0, fmt.Errorf("masker fallback request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return text, 0, fmt.Errorf("read masker fallback response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return text, 0, fmt.Errorf("masker fallback returned status %d", resp.StatusCode)
	}

	var wireResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return text, 0, fmt.Errorf("decode masker fallback response: %w", err)
	}
	if len(wireResp.Choices) == 0 {
		return text, 0, fmt.Errorf("masker fallback response had no choices")
	}

	rewritten := wireResp.Choices[0].Message.Content
	added := countRedactionTokens(rewritten) - countRedactionTokens(text)
	if added < 0 {
		added = 0
	}
	return rewritten, added, nil
}

func buildRedactionPrompt(text string, piiTypes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PII types to look for: %s\n\n", strings.Join(piiTypes, ", "))
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

// countRedactionTokens counts "[REDACTED_" occurrences as a stand-in for the
// replacement count, since chat-completion responses carry no structured
// count field.
func countRedactionTokens(text string) int {
	return strings.Count(text, "[REDACTED_")
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
