package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoad_MinimalValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"upstreams": [
			{"id": "srv", "name": "Server", "transport": "stdio", "command": "srv-bin"}
		],
		"compression": {
			"enabled": true,
			"tokenThreshold": 1000,
			"maxOutputTokens": 500,
			"llmConfig": {"baseUrl": "https://llm.example.com/v1", "model": "gpt-4o-mini"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Upstreams) != 1 || cfg.Upstreams[0].ID != "srv" {
		t.Fatalf("expected one upstream 'srv', got %+v", cfg.Upstreams)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default logging level 'info', got %q", cfg.Logging.Level)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `{
		"upstreams": [
			{"id": "srv", "name": "Server", "transport": "stdio", "command": "srv-bin"}
		],
		"compression": {
			"enabled": true,
			"tokenThreshold": 1000,
			"maxOutputTokens": 500,
			"llmConfig": {"baseUrl": "https://llm.example.com/v1", "model": "gpt-4o-mini"}
		},
		"totallyUnknownField": true
	}`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown top-level field")
	}
}

func TestLoad_RejectsMissingUpstreams(t *testing.T) {
	path := writeConfig(t, `{
		"upstreams": [],
		"compression": {
			"enabled": false,
			"tokenThreshold": 1000,
			"maxOutputTokens": 500,
			"llmConfig": {"baseUrl": "https://llm.example.com/v1", "model": "gpt-4o-mini"}
		}
	}`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an empty upstreams list")
	}
}

func TestLoad_RejectsStdioUpstreamWithoutCommand(t *testing.T) {
	path := writeConfig(t, `{
		"upstreams": [
			{"id": "srv", "name": "Server", "transport": "stdio"}
		],
		"compression": {
			"enabled": false,
			"tokenThreshold": 1000,
			"maxOutputTokens": 500,
			"llmConfig": {"baseUrl": "https://llm.example.com/v1", "model": "gpt-4o-mini"}
		}
	}`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a stdio upstream missing a command")
	}
}

func TestLoad_RejectsDuplicateUpstreamIDs(t *testing.T) {
	path := writeConfig(t, `{
		"upstreams": [
			{"id": "srv", "name": "Server", "transport": "stdio", "command": "a"},
			{"id": "srv", "name": "Server Two", "transport": "stdio", "command": "b"}
		],
		"compression": {
			"enabled": false,
			"tokenThreshold": 1000,
			"maxOutputTokens": 500,
			"llmConfig": {"baseUrl": "https://llm.example.com/v1", "model": "gpt-4o-mini"}
		}
	}`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for duplicate upstream ids")
	}
}

func TestBuild_AppliesPerToolOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"upstreams": [
			{
				"id": "srv",
				"name": "Server",
				"transport": "stdio",
				"command": "srv-bin",
				"tools": {
					"dangerous": {"hidden": true},
					"fetch": {"hideParameters": ["apiKey"]}
				}
			}
		],
		"compression": {
			"enabled": true,
			"tokenThreshold": 1000,
			"maxOutputTokens": 500,
			"llmConfig": {"baseUrl": "https://llm.example.com/v1", "model": "gpt-4o-mini"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	built := cfg.Build()
	scope, ok := built.UpstreamScopes["srv"]
	if !ok {
		t.Fatalf("expected upstream scope 'srv'")
	}
	dangerous, ok := scope.Tools["dangerous"]
	if !ok || dangerous.Hidden == nil || !*dangerous.Hidden {
		t.Fatalf("expected 'dangerous' tool to be hidden")
	}
	fetch, ok := scope.Tools["fetch"]
	if !ok || len(fetch.HideParameters) != 1 || fetch.HideParameters[0] != "apiKey" {
		t.Fatalf("expected 'fetch' tool to hide apiKey, got %+v", fetch)
	}

	if built.SummarizerLLM.BaseURL != "https://llm.example.com/v1" {
		t.Fatalf("expected summarizer baseURL to carry through, got %q", built.SummarizerLLM.BaseURL)
	}
}

func TestBuild_RetryEscalationDefaultCap(t *testing.T) {
	path := writeConfig(t, `{
		"upstreams": [
			{"id": "srv", "name": "Server", "transport": "stdio", "command": "srv-bin"}
		],
		"compression": {
			"enabled": true,
			"tokenThreshold": 1000,
			"maxOutputTokens": 500,
			"retryEscalation": {"enabled": true, "windowSeconds": 30, "tokenMultiplier": 2.0},
			"llmConfig": {"baseUrl": "https://llm.example.com/v1", "model": "gpt-4o-mini"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	built := cfg.Build()
	if built.Global.RetryEscalation == nil {
		t.Fatalf("expected retry escalation to carry through")
	}
	if built.Global.RetryEscalation.Cap != 3 {
		t.Fatalf("expected default cap 3, got %d", built.Global.RetryEscalation.Cap)
	}
}
