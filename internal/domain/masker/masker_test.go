package masker

import (
	"context"
	"errors"
	"testing"

	"github.com/clip-mcp/clip/internal/domain/policy"
)

func piiSet(types ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

func TestMask_Disabled_ReturnsUnchanged(t *testing.T) {
	m := New(nil)
	pol := policy.MaskingPolicy{Enabled: false, PIITypes: piiSet("email")}

	r := m.Mask(context.Background(), "contact me at a@b.com", pol)
	if r.Text != "contact me at a@b.com" {
		t.Fatalf("expected unchanged text when disabled, got %q", r.Text)
	}
	if r.Replacements != 0 {
		t.Fatalf("expected 0 replacements, got %d", r.Replacements)
	}
}

func TestMask_RedactsEmail(t *testing.T) {
	m := New(nil)
	pol := policy.MaskingPolicy{Enabled: true, PIITypes: piiSet("email")}

	r := m.Mask(context.Background(), "contact me at a@b.com please", pol)
	if r.Text != "contact me at [REDACTED_EMAIL] please" {
		t.Fatalf("got %q", r.Text)
	}
	if r.Replacements != 1 {
		t.Fatalf("expected 1 replacement, got %d", r.Replacements)
	}
}

func TestMask_RedactsSSN(t *testing.T) {
	m := New(nil)
	pol := policy.MaskingPolicy{Enabled: true, PIITypes: piiSet("ssn")}

	r := m.Mask(context.Background(), "ssn is 123-45-6789 on file", pol)
	if r.Text != "ssn is [REDACTED_SSN] on file" {
		t.Fatalf("got %q", r.Text)
	}
}

func TestMask_MultipleTypes(t *testing.T) {
	m := New(nil)
	pol := policy.MaskingPolicy{Enabled: true, PIITypes: piiSet("email", "ssn")}

	r := m.Mask(context.Background(), "a@b.com and 123-45-6789", pol)
	if r.Replacements != 2 {
		t.Fatalf("expected 2 replacements, got %d: %q", r.Replacements, r.Text)
	}
}

// TestMask_Deterministic covers spec.md §4.D's determinism requirement.
func TestMask_Deterministic(t *testing.T) {
	m := New(nil)
	pol := policy.MaskingPolicy{Enabled: true, PIITypes: piiSet("email", "phone")}
	text := "email a@b.com phone 555-123-4567"

	r1 := m.Mask(context.Background(), text, pol)
	r2 := m.Mask(context.Background(), text, pol)
	if r1.Text != r2.Text {
		t.Fatalf("expected byte-identical output, got %q vs %q", r1.Text, r2.Text)
	}
}

type fakeFallback struct {
	called bool
	text   string
	n      int
	err    error
}

func (f *fakeFallback) Redact(ctx context.Context, text string, piiTypes []string) (string, int, error) {
	f.called = true
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.n, nil
}

func TestMask_LLMFallback_InvokedBelowThreshold(t *testing.T) {
	fb := &fakeFallback{text: "scrubbed", n: 1}
	m := New(fb)
	pol := policy.MaskingPolicy{
		Enabled:              true,
		PIITypes:             piiSet("ip_address"), // confidenceLow
		LLMFallback:          true,
		LLMFallbackThreshold: "medium",
	}

	r := m.Mask(context.Background(), "server at 10.0.0.1", pol)
	if !fb.called {
		t.Fatalf("expected LLM fallback to be invoked for low-confidence detection")
	}
	if r.Text != "scrubbed" {
		t.Fatalf("expected fallback result, got %q", r.Text)
	}
}

func TestMask_LLMFallback_SkippedAboveThreshold(t *testing.T) {
	fb := &fakeFallback{text: "scrubbed", n: 1}
	m := New(fb)
	pol := policy.MaskingPolicy{
		Enabled:              true,
		PIITypes:             piiSet("email"), // confidenceHigh
		LLMFallback:          true,
		LLMFallbackThreshold: "medium",
	}

	m.Mask(context.Background(), "a@b.com", pol)
	if fb.called {
		t.Fatalf("expected LLM fallback to be skipped for high-confidence detection")
	}
}

// TestMask_LLMFallback_ErrorDegradesSilently covers spec.md §7: MaskerError
// from the LLM-fallback pass degrades to the regex-only result.
func TestMask_LLMFallback_ErrorDegradesSilently(t *testing.T) {
	fb := &fakeFallback{err: errors.New("llm unavailable")}
	m := New(fb)
	pol := policy.MaskingPolicy{
		Enabled:              true,
		PIITypes:             piiSet("ip_address"),
		LLMFallback:          true,
		LLMFallbackThreshold: "medium",
	}

	r := m.Mask(context.Background(), "server at 10.0.0.1", pol)
	if r.Text != "[REDACTED_IP_ADDRESS]" {
		t.Fatalf("expected regex-only fallback on LLM error, got %q", r.Text)
	}
}

func TestMaskAll(t *testing.T) {
	m := New(nil)
	pol := policy.MaskingPolicy{Enabled: true, PIITypes: piiSet("email")}

	out, total := m.MaskAll(context.Background(), []string{"a@b.com", "no pii here", "c@d.com"}, pol)
	if total != 2 {
		t.Fatalf("expected 2 total replacements, got %d", total)
	}
	if out[1] != "no pii here" {
		t.Fatalf("expected untouched blob to pass through, got %q", out[1])
	}
}
