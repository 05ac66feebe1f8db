package policy

import (
	"testing"
)

func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	global := GlobalConfig{
		Defaults: ScopeDefaults{
			Compression: &CompressionPolicyPartial{
				Enabled:        boolPtr(true),
				TokenThreshold: intPtr(1000),
			},
		},
	}
	upstreams := map[string]UpstreamScope{
		"srv": {
			Tools: map[string]ToolConfig{
				"fetch": {},
			},
		},
	}
	return NewResolver(global, upstreams)
}

// S1: no overrides, result equals global defaults plus built-in maxOutputTokens.
func TestResolveCompressionPolicy_NoOverrides(t *testing.T) {
	r := newTestResolver(t)

	got := r.ResolveCompressionPolicy("srv__fetch")
	want := CompressionPolicy{
		Enabled:         true,
		TokenThreshold:  1000,
		MaxOutputTokens: 500,
		GoalAware:       false,
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

// S2: three-level override precedence, tool > upstream > global.
func TestResolveCompressionPolicy_ThreeLevelOverride(t *testing.T) {
	global := GlobalConfig{
		Defaults: ScopeDefaults{
			Compression: &CompressionPolicyPartial{TokenThreshold: intPtr(1000)},
		},
	}
	upstreams := map[string]UpstreamScope{
		"srv": {
			Defaults: ScopeDefaults{
				Compression: &CompressionPolicyPartial{TokenThreshold: intPtr(3000)},
			},
			Tools: map[string]ToolConfig{
				"fetch": {Compression: &CompressionPolicyPartial{TokenThreshold: intPtr(5000)}},
				"other": {},
			},
		},
	}
	r := NewResolver(global, upstreams)

	if got := r.ResolveCompressionPolicy("srv__fetch").TokenThreshold; got != 5000 {
		t.Errorf("fetch: got %d, want 5000", got)
	}
	if got := r.ResolveCompressionPolicy("srv__other").TokenThreshold; got != 3000 {
		t.Errorf("other: got %d, want 3000", got)
	}
}

// P1: the most specific layer that sets a field wins, per field.
func TestResolveCachePolicy_FieldWiseOverride(t *testing.T) {
	global := GlobalConfig{
		Defaults: ScopeDefaults{
			Cache: &CachePolicyPartial{Enabled: boolPtr(true), TTLSeconds: intPtr(60)},
		},
	}
	upstreams := map[string]UpstreamScope{
		"srv": {
			Tools: map[string]ToolConfig{
				// only overrides TTL, Enabled should still come from global.
				"fetch": {Cache: &CachePolicyPartial{TTLSeconds: intPtr(900)}},
			},
		},
	}
	r := NewResolver(global, upstreams)

	got := r.ResolveCachePolicy("srv__fetch")
	if !got.Enabled {
		t.Errorf("expected Enabled inherited from global, got false")
	}
	if got.TTLSeconds != 900 {
		t.Errorf("expected TTLSeconds overridden to 900, got %d", got.TTLSeconds)
	}
}

// P2: piiTypes is replaced wholesale by the most specific layer, never unioned.
func TestResolveMaskingPolicy_PIITypesReplacement(t *testing.T) {
	global := GlobalConfig{
		Defaults: ScopeDefaults{
			Masking: &MaskingPolicyPartial{PIITypes: []string{"email", "ssn"}},
		},
	}
	upstreams := map[string]UpstreamScope{
		"srv": {
			Tools: map[string]ToolConfig{
				"fetch": {Masking: &MaskingPolicyPartial{PIITypes: []string{"phone"}}},
			},
		},
	}
	r := NewResolver(global, upstreams)

	got := r.ResolveMaskingPolicy("srv__fetch").PIITypes
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 PII type (replaced, not unioned), got %d: %v", len(got), got)
	}
	if _, ok := got["phone"]; !ok {
		t.Errorf("expected PIITypes = {phone}, got %v", got)
	}
}

// S3 / P3: hidden tools resolve to Hidden=true regardless of other layers.
func TestIsToolHidden(t *testing.T) {
	upstreams := map[string]UpstreamScope{
		"srv": {
			Tools: map[string]ToolConfig{
				"fetch":     {},
				"dangerous": {Hidden: boolPtr(true)},
			},
		},
	}
	r := NewResolver(GlobalConfig{}, upstreams)

	if r.IsToolHidden("srv__fetch") {
		t.Errorf("fetch should not be hidden")
	}
	if !r.IsToolHidden("srv__dangerous") {
		t.Errorf("dangerous should be hidden")
	}
	if r.IsToolHidden("srv__unknown") {
		t.Errorf("unknown tool should resolve to not hidden, not error")
	}
}

// S6: parameterOverrides and hideParameters resolve independently and both apply.
func TestParameterOverridesAndHiding(t *testing.T) {
	upstreams := map[string]UpstreamScope{
		"srv": {
			Tools: map[string]ToolConfig{
				"fetch": {
					HideParameters:     []string{"api_key"},
					ParameterOverrides: map[string]any{"api_key": "SECRET"},
				},
			},
		},
	}
	r := NewResolver(GlobalConfig{}, upstreams)

	hidden := r.GetHiddenParameters("srv__fetch")
	if len(hidden) != 1 || hidden[0] != "api_key" {
		t.Fatalf("expected hideParameters=[api_key], got %v", hidden)
	}
	overrides := r.GetParameterOverrides("srv__fetch")
	if overrides["api_key"] != "SECRET" {
		t.Fatalf("expected override api_key=SECRET, got %v", overrides)
	}
}

func TestGetParameterOverrides_EmptyWhenUnset(t *testing.T) {
	r := newTestResolver(t)
	if got := r.GetParameterOverrides("srv__fetch"); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}
