// Package masker implements the PII Masker (spec.md §4.D): regex-based
// detection and fixed-token redaction of sensitive substrings in response
// text, per configured PII type, with an optional LLM-based fallback pass
// for low-confidence detections. Detection is plain pattern matching rather
// than a third-party regex/NLP-PII library, since nothing in the example
// pack pulls one in for this concern (the teacher's own classifier.go used
// the same hand-written-pattern discipline for request classification).
package masker

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/clip-mcp/clip/internal/domain/policy"
)

// Result is the outcome of masking a single text blob.
type Result struct {
	Text         string
	Replacements int
	// Confidence is the lowest per-type detection confidence observed while
	// scanning, used to decide whether llmFallback should run.
	Confidence string
}

const (
	confidenceHigh   = "high"
	confidenceMedium = "medium"
	confidenceLow    = "low"
)

var confidenceRank = map[string]int{confidenceLow: 0, confidenceMedium: 1, confidenceHigh: 2}

// piiPattern pairs a detection regex with its redaction token and the
// heuristic confidence of that pattern (how likely a match is a true
// positive rather than incidental text that merely looks similar).
type piiPattern struct {
	re         *regexp.Regexp
	token      string
	confidence string
}

// patterns is the closed set of recognized PII types (spec.md §3: "email,
// ssn, phone, credit_card, ip_address").
var patterns = map[string]piiPattern{
	"email": {
		re:         regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		token:      "[REDACTED_EMAIL]",
		confidence: confidenceHigh,
	},
	"ssn": {
		re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		token:      "[REDACTED_SSN]",
		confidence: confidenceHigh,
	},
	"phone": {
		re:         regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`),
		token:      "[REDACTED_PHONE]",
		confidence: confidenceMedium,
	},
	"credit_card": {
		re:         regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
		token:      "[REDACTED_CREDIT_CARD]",
		confidence: confidenceMedium,
	},
	"ip_address": {
		re:         regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\b`),
		token:      "[REDACTED_IP_ADDRESS]",
		confidence: confidenceLow,
	},
}

// LLMFallback performs a second-pass LLM-based extraction when the regex
// pass's confidence is below the configured threshold. Implemented by an
// adapter that calls an external LLM; masker degrades to regex-only output
// if this returns an error (spec.md §7: MaskerError never fails the call).
type LLMFallback interface {
	Redact(ctx context.Context, text string, piiTypes []string) (string, int, error)
}

// Masker applies a MaskingPolicy to response text.
type Masker struct {
	fallback LLMFallback
}

// New creates a Masker. fallback may be nil if llmFallback is never enabled.
func New(fallback LLMFallback) *Masker {
	return &Masker{fallback: fallback}
}

// Mask redacts PII from text per pol. Deterministic: identical text and
// policy always produce byte-identical output (spec.md §4.D).
func (m *Masker) Mask(ctx context.Context, text string, pol policy.MaskingPolicy) Result {
	if !pol.Enabled || len(pol.PIITypes) == 0 {
		return Result{Text: text, Confidence: confidenceHigh}
	}

	masked, replacements, lowestConfidence := regexMask(text, pol.PIITypes)

	if pol.LLMFallback && m.fallback != nil && belowThreshold(lowestConfidence, pol.LLMFallbackThreshold) {
		types := make([]string, 0, len(pol.PIITypes))
		for t := range pol.PIITypes {
			types = append(types, t)
		}
		if redacted, n, err := m.fallback.Redact(ctx, masked, types); err == nil {
			masked = redacted
			replacements += n
		}
		// LLM-fallback errors degrade silently to the regex-only result,
		// per spec.md §7 (MaskerError: LLM-fallback failures degrade).
	}

	return Result{Text: masked, Replacements: replacements, Confidence: lowestConfidence}
}

// MaskAll masks each blob in texts independently and sums replacement counts.
func (m *Masker) MaskAll(ctx context.Context, texts []string, pol policy.MaskingPolicy) ([]string, int) {
	out := make([]string, len(texts))
	total := 0
	for i, text := range texts {
		r := m.Mask(ctx, text, pol)
		out[i] = r.Text
		total += r.Replacements
	}
	return out, total
}

func regexMask(text string, piiTypes map[string]struct{}) (string, int, string) {
	replacements := 0
	lowest := confidenceHigh
	types := make([]string, 0, len(piiTypes))
	for piiType := range piiTypes {
		types = append(types, piiType)
	}
	sort.Strings(types)
	for _, piiType := range types {
		pat, ok := patterns[piiType]
		if !ok {
			continue
		}
		matches := pat.re.FindAllStringIndex(text, -1)
		if len(matches) > 0 {
			text = pat.re.ReplaceAllString(text, pat.token)
			replacements += len(matches)
		}
		if confidenceRank[pat.confidence] < confidenceRank[lowest] {
			lowest = pat.confidence
		}
	}
	return text, replacements, lowest
}

func belowThreshold(observed, threshold string) bool {
	return confidenceRank[observed] < confidenceRank[normalizeThreshold(threshold)]
}

func normalizeThreshold(threshold string) string {
	switch strings.ToLower(threshold) {
	case confidenceLow, confidenceMedium, confidenceHigh:
		return strings.ToLower(threshold)
	default:
		return confidenceMedium
	}
}
