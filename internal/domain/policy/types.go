// Package policy resolves the effective per-tool policy by layering
// global, upstream, and tool-level configuration scopes.
package policy

// CompressionPolicy is the fully resolved compression policy for a qualified tool.
// All fields are always defined (invariant I1).
type CompressionPolicy struct {
	Enabled            bool
	TokenThreshold     int
	MaxOutputTokens    int
	CustomInstructions string
	GoalAware          bool
}

// MaskingPolicy is the fully resolved masking policy for a qualified tool.
type MaskingPolicy struct {
	Enabled              bool
	PIITypes             map[string]struct{}
	LLMFallback          bool
	LLMFallbackThreshold string // "low", "medium", "high"
}

// CachePolicy is the fully resolved cache policy for a qualified tool.
type CachePolicy struct {
	Enabled    bool
	TTLSeconds int
}

// RetryEscalation is a global-only setting: repeated identical calls within
// WindowSeconds raise the effective MaxOutputTokens by TokenMultiplier^k,
// capped at Cap levels.
type RetryEscalation struct {
	Enabled         bool
	WindowSeconds   int
	TokenMultiplier float64
	Cap             int
}

// CompressionPolicyPartial is a layer's partial override of CompressionPolicy.
// All fields are optional (nil/zero-value pointer = inherit from the next layer).
type CompressionPolicyPartial struct {
	Enabled            *bool
	TokenThreshold     *int
	MaxOutputTokens    *int
	CustomInstructions *string
	GoalAware          *bool
}

// MaskingPolicyPartial is a layer's partial override of MaskingPolicy.
// PIITypes, when set, replaces the set from less specific layers wholesale
// (it is never unioned — see Resolver.ResolveMaskingPolicy).
type MaskingPolicyPartial struct {
	Enabled              *bool
	PIITypes             []string
	LLMFallback          *bool
	LLMFallbackThreshold *string
}

// CachePolicyPartial is a layer's partial override of CachePolicy.
type CachePolicyPartial struct {
	Enabled    *bool
	TTLSeconds *int
}

// ToolConfig is the tool-level configuration layer. All fields are optional;
// an absent field means "inherit from the upstream or global layer".
type ToolConfig struct {
	Hidden               *bool
	OverwriteDescription *string
	HideParameters       []string
	ParameterOverrides   map[string]any
	Compression          *CompressionPolicyPartial
	Masking              *MaskingPolicyPartial
	Cache                *CachePolicyPartial
}

// ScopeDefaults is the set of policy partials a layer (upstream or global)
// may specify. Tool-level hidden/overwriteDescription/hideParameters/
// parameterOverrides have no upstream- or global-level equivalent per the
// data model — they are tool-only fields.
type ScopeDefaults struct {
	Compression *CompressionPolicyPartial
	Masking     *MaskingPolicyPartial
	Cache       *CachePolicyPartial
}

// GlobalConfig is the top (global) layer plus the two global-only settings
// that have no per-tool or per-upstream equivalent.
type GlobalConfig struct {
	Defaults        ScopeDefaults
	RetryEscalation *RetryEscalation
	BypassEnabled   bool
}

// builtinDefaults is the fourth, innermost layer: the built-in defaults used
// when no configured layer specifies a field.
var builtinDefaults = struct {
	compression CompressionPolicy
	masking     MaskingPolicy
	cache       CachePolicy
}{
	compression: CompressionPolicy{
		Enabled:         false,
		TokenThreshold:  1000,
		MaxOutputTokens: 500,
		GoalAware:       false,
	},
	masking: MaskingPolicy{
		Enabled:              false,
		PIITypes:             map[string]struct{}{},
		LLMFallback:          false,
		LLMFallbackThreshold: "medium",
	},
	cache: CachePolicy{
		Enabled:    false,
		TTLSeconds: 300,
	},
}

// DefaultEscalationCap is applied when a RetryEscalation record omits Cap.
const DefaultEscalationCap = 3
