package policy

import (
	"sync"

	"github.com/clip-mcp/clip/internal/domain/qualname"
)

// UpstreamScope holds one upstream's default overrides plus its per-tool
// configuration layer, keyed by bare (unqualified) tool name.
type UpstreamScope struct {
	Defaults ScopeDefaults
	Tools    map[string]ToolConfig
}

// Resolver computes the effective, fully-resolved policy for any qualified
// tool name by layering tool > upstream > global > built-in, field-wise.
// Configuration is immutable after load (spec.md Lifecycles note): a
// Resolver is built once from the loaded config and never mutated, so no
// locking is needed for the layers themselves.
type Resolver struct {
	global    GlobalConfig
	upstreams map[string]UpstreamScope

	mu sync.RWMutex
}

// NewResolver builds a Resolver from the global layer and the per-upstream
// scopes (defaults + tool overrides) produced by config loading.
func NewResolver(global GlobalConfig, upstreams map[string]UpstreamScope) *Resolver {
	if upstreams == nil {
		upstreams = map[string]UpstreamScope{}
	}
	return &Resolver{global: global, upstreams: upstreams}
}

// lookup returns the tool-level and upstream-level layers for a qualified
// tool name. Both may be zero-valued (not found) when the tool is unknown;
// per spec.md 4.A, queries for an unknown tool return the merged global (and,
// when the upstream is known, upstream-level) policy over the built-in
// defaults rather than an error — existence is enforced by the catalog, not
// here.
func (r *Resolver) lookup(qn string) (tool ToolConfig, upstream ScopeDefaults, found bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	upstreamID, toolName, ok := qualname.Split(qn)
	if !ok {
		return ToolConfig{}, ScopeDefaults{}, false
	}
	scope, ok := r.upstreams[upstreamID]
	if !ok {
		return ToolConfig{}, ScopeDefaults{}, false
	}
	t, hasTool := scope.Tools[toolName]
	return t, scope.Defaults, hasTool
}

// ResolveCompressionPolicy merges compression fields tool > upstream > global > built-in.
func (r *Resolver) ResolveCompressionPolicy(qn string) CompressionPolicy {
	tool, upstreamDefaults, _ := r.lookup(qn)
	result := builtinDefaults.compression

	layers := []*CompressionPolicyPartial{r.global.Defaults.Compression, upstreamDefaults.Compression, tool.Compression}
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.Enabled != nil {
			result.Enabled = *l.Enabled
		}
		if l.TokenThreshold != nil {
			result.TokenThreshold = *l.TokenThreshold
		}
		if l.MaxOutputTokens != nil {
			result.MaxOutputTokens = *l.MaxOutputTokens
		}
		if l.CustomInstructions != nil {
			result.CustomInstructions = *l.CustomInstructions
		}
		if l.GoalAware != nil {
			result.GoalAware = *l.GoalAware
		}
	}
	return result
}

// ResolveMaskingPolicy merges masking fields tool > upstream > global > built-in.
// PIITypes is replaced wholesale by the most specific layer that sets it,
// never unioned across layers (P2).
func (r *Resolver) ResolveMaskingPolicy(qn string) MaskingPolicy {
	tool, upstreamDefaults, _ := r.lookup(qn)
	result := MaskingPolicy{
		Enabled:              builtinDefaults.masking.Enabled,
		PIITypes:             map[string]struct{}{},
		LLMFallback:          builtinDefaults.masking.LLMFallback,
		LLMFallbackThreshold: builtinDefaults.masking.LLMFallbackThreshold,
	}

	layers := []*MaskingPolicyPartial{r.global.Defaults.Masking, upstreamDefaults.Masking, tool.Masking}
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.Enabled != nil {
			result.Enabled = *l.Enabled
		}
		if l.PIITypes != nil {
			set := make(map[string]struct{}, len(l.PIITypes))
			for _, t := range l.PIITypes {
				set[t] = struct{}{}
			}
			result.PIITypes = set
		}
		if l.LLMFallback != nil {
			result.LLMFallback = *l.LLMFallback
		}
		if l.LLMFallbackThreshold != nil {
			result.LLMFallbackThreshold = *l.LLMFallbackThreshold
		}
	}
	return result
}

// ResolveCachePolicy merges cache fields tool > upstream > global > built-in.
func (r *Resolver) ResolveCachePolicy(qn string) CachePolicy {
	tool, upstreamDefaults, _ := r.lookup(qn)
	result := builtinDefaults.cache

	layers := []*CachePolicyPartial{r.global.Defaults.Cache, upstreamDefaults.Cache, tool.Cache}
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.Enabled != nil {
			result.Enabled = *l.Enabled
		}
		if l.TTLSeconds != nil {
			result.TTLSeconds = *l.TTLSeconds
		}
	}
	return result
}

// GetHiddenParameters returns the tool-level hideParameters list, or nil.
func (r *Resolver) GetHiddenParameters(qn string) []string {
	tool, _, _ := r.lookup(qn)
	return tool.HideParameters
}

// GetParameterOverrides returns the tool-level parameterOverrides map, or an
// empty map if none is configured.
func (r *Resolver) GetParameterOverrides(qn string) map[string]any {
	tool, _, _ := r.lookup(qn)
	if tool.ParameterOverrides == nil {
		return map[string]any{}
	}
	return tool.ParameterOverrides
}

// IsToolHidden reports whether the tool is hidden after resolution (I2).
func (r *Resolver) IsToolHidden(qn string) bool {
	tool, _, _ := r.lookup(qn)
	return tool.Hidden != nil && *tool.Hidden
}

// GetDescriptionOverride returns the tool-level description override, if any.
func (r *Resolver) GetDescriptionOverride(qn string) (string, bool) {
	tool, _, _ := r.lookup(qn)
	if tool.OverwriteDescription == nil {
		return "", false
	}
	return *tool.OverwriteDescription, true
}

// IsGoalAwareEnabled reports whether the resolved compression policy for qn
// requests goal-aware summarization.
func (r *Resolver) IsGoalAwareEnabled(qn string) bool {
	return r.ResolveCompressionPolicy(qn).GoalAware
}

// GetRetryEscalation returns the global-only retry-escalation configuration.
func (r *Resolver) GetRetryEscalation() *RetryEscalation {
	return r.global.RetryEscalation
}

// IsBypassEnabled returns the global-only cache-bypass toggle.
func (r *Resolver) IsBypassEnabled() bool {
	return r.global.BypassEnabled
}
