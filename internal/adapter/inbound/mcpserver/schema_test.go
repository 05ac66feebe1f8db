package mcpserver

import (
	"encoding/json"
	"testing"
)

func TestBuildInputSchema_NilForEmptyRaw(t *testing.T) {
	schema, err := buildInputSchema(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schema != nil {
		t.Fatalf("expected nil schema for empty raw input")
	}
}

func TestBuildInputSchema_StripsHiddenTopLevelProperty(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"apiKey": {"type": "string"}
		},
		"required": ["query", "apiKey"]
	}`)

	schema, err := buildInputSchema(raw, []string{"apiKey"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := schema.Properties["apiKey"]; ok {
		t.Fatalf("expected apiKey to be stripped from properties")
	}
	if _, ok := schema.Properties["query"]; !ok {
		t.Fatalf("expected query to survive stripping")
	}
	for _, r := range schema.Required {
		if r == "apiKey" {
			t.Fatalf("expected apiKey removed from required list, got %v", schema.Required)
		}
	}
}

func TestBuildInputSchema_NoHideIsNoOp(t *testing.T) {
	raw := json.RawMessage(`{"type": "object", "properties": {"q": {"type": "string"}}}`)
	schema, err := buildInputSchema(raw, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := schema.Properties["q"]; !ok {
		t.Fatalf("expected untouched schema to retain its property")
	}
}
