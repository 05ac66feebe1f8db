package config

import (
	"time"

	"github.com/clip-mcp/clip/internal/domain/policy"
	"github.com/clip-mcp/clip/internal/domain/summarizer"
	"github.com/clip-mcp/clip/internal/domain/upstream"
)

// Built is the fully-resolved set of domain objects cmd/clip needs to
// construct a running CLIP instance, assembled from one loaded RootConfig.
type Built struct {
	Global         policy.GlobalConfig
	UpstreamScopes map[string]policy.UpstreamScope
	Upstreams      []upstream.Config
	SummarizerLLM  summarizer.LLMConfig
	MaskingLLM     *LLMConfig // nil unless masking.llmFallback is configured
	MaskingEnabled bool
}

// Build converts the loaded, validated JSON configuration into the domain
// types the Policy Resolver, Upstream Registry, and Summarizer are
// constructed from. Call only after Load (or after SetDefaults+Validate on a
// hand-built RootConfig in tests).
func (c *RootConfig) Build() Built {
	return Built{
		Global:         c.buildGlobalConfig(),
		UpstreamScopes: c.buildUpstreamScopes(),
		Upstreams:      c.buildUpstreamConfigs(),
		SummarizerLLM:  c.buildSummarizerLLM(),
		MaskingLLM:     c.buildMaskingLLM(),
		MaskingEnabled: c.Masking != nil && c.Masking.Enabled,
	}
}

func (c *RootConfig) buildGlobalConfig() policy.GlobalConfig {
	global := policy.GlobalConfig{
		BypassEnabled: c.Compression.BypassEnabled,
	}

	compressionOverride := &CompressionOverride{
		Enabled:            &c.Compression.Enabled,
		TokenThreshold:     &c.Compression.TokenThreshold,
		MaxOutputTokens:    &c.Compression.MaxOutputTokens,
		CustomInstructions: &c.Compression.CustomInstructions,
		GoalAware:          &c.Compression.GoalAware,
	}
	global.Defaults.Compression = compressionOverride.toPartial()

	if c.Masking != nil {
		global.Defaults.Masking = (&MaskingOverride{
			Enabled:              &c.Masking.Enabled,
			PIITypes:             c.Masking.PIITypes,
			LLMFallback:          &c.Masking.LLMFallback,
			LLMFallbackThreshold: &c.Masking.LLMFallbackThreshold,
		}).toPartial()
	}

	if c.Defaults != nil {
		global.Defaults = mergeScopeDefaults(global.Defaults, buildScopeDefaults(c.Defaults))
	}

	if c.Compression.RetryEscalation != nil {
		r := c.Compression.RetryEscalation
		global.RetryEscalation = &policy.RetryEscalation{
			Enabled:         r.Enabled,
			WindowSeconds:   r.WindowSeconds,
			TokenMultiplier: r.TokenMultiplier,
			Cap:             r.Cap,
		}
	}

	return global
}

func (c *RootConfig) buildUpstreamScopes() map[string]policy.UpstreamScope {
	scopes := make(map[string]policy.UpstreamScope, len(c.Upstreams))
	for _, u := range c.Upstreams {
		scope := policy.UpstreamScope{Tools: map[string]policy.ToolConfig{}}
		if u.Defaults != nil {
			scope.Defaults = buildScopeDefaults(u.Defaults)
		}
		for name, tool := range u.Tools {
			scope.Tools[name] = buildToolConfig(tool)
		}
		scopes[u.ID] = scope
	}
	return scopes
}

func (c *RootConfig) buildUpstreamConfigs() []upstream.Config {
	out := make([]upstream.Config, 0, len(c.Upstreams))
	for _, u := range c.Upstreams {
		cfg := upstream.Config{
			ID:        u.ID,
			Name:      u.Name,
			Transport: upstream.Transport(u.Transport),
			Command:   u.Command,
			Args:      u.Args,
			Env:       u.Env,
			URL:       u.URL,
			Tools:     map[string]policy.ToolConfig{},
		}
		if u.Defaults != nil {
			cfg.Defaults = buildScopeDefaults(u.Defaults)
		}
		for name, tool := range u.Tools {
			cfg.Tools[name] = buildToolConfig(tool)
		}
		out = append(out, cfg)
	}
	return out
}

func (c *RootConfig) buildSummarizerLLM() summarizer.LLMConfig {
	return summarizer.LLMConfig{
		BaseURL: c.Compression.LLMConfig.BaseURL,
		Model:   c.Compression.LLMConfig.Model,
		APIKey:  c.Compression.LLMConfig.APIKey,
		Timeout: 30 * time.Second,
	}
}

func (c *RootConfig) buildMaskingLLM() *LLMConfig {
	if c.Masking == nil || !c.Masking.LLMFallback || c.Masking.LLMConfig == nil {
		return nil
	}
	cfg := *c.Masking.LLMConfig
	return &cfg
}

func buildScopeDefaults(d *DefaultsConfig) policy.ScopeDefaults {
	var sd policy.ScopeDefaults
	if d.Compression != nil {
		sd.Compression = d.Compression.toPartial()
	}
	if d.Masking != nil {
		sd.Masking = d.Masking.toPartial()
	}
	if d.Cache != nil {
		sd.Cache = d.Cache.toPartial()
	}
	return sd
}

func buildToolConfig(t ToolConfig) policy.ToolConfig {
	tc := policy.ToolConfig{
		Hidden:               t.Hidden,
		OverwriteDescription: t.OverwriteDescription,
		HideParameters:       t.HideParameters,
		ParameterOverrides:   t.ParameterOverrides,
	}
	if t.Compression != nil {
		tc.Compression = t.Compression.toPartial()
	}
	if t.Masking != nil {
		tc.Masking = t.Masking.toPartial()
	}
	if t.Cache != nil {
		tc.Cache = t.Cache.toPartial()
	}
	return tc
}

// mergeScopeDefaults fills any field left nil in specific with the
// corresponding field from fallback — used to let the global defaults{}
// block fill in gaps the top-level compression/masking blocks didn't set.
func mergeScopeDefaults(specific, fallback policy.ScopeDefaults) policy.ScopeDefaults {
	if specific.Compression == nil {
		specific.Compression = fallback.Compression
	}
	if specific.Masking == nil {
		specific.Masking = fallback.Masking
	}
	if specific.Cache == nil {
		specific.Cache = fallback.Cache
	}
	return specific
}

func (o *CompressionOverride) toPartial() *policy.CompressionPolicyPartial {
	if o == nil {
		return nil
	}
	return &policy.CompressionPolicyPartial{
		Enabled:            o.Enabled,
		TokenThreshold:     o.TokenThreshold,
		MaxOutputTokens:    o.MaxOutputTokens,
		CustomInstructions: o.CustomInstructions,
		GoalAware:          o.GoalAware,
	}
}

func (o *MaskingOverride) toPartial() *policy.MaskingPolicyPartial {
	if o == nil {
		return nil
	}
	return &policy.MaskingPolicyPartial{
		Enabled:              o.Enabled,
		PIITypes:             o.PIITypes,
		LLMFallback:          o.LLMFallback,
		LLMFallbackThreshold: o.LLMFallbackThreshold,
	}
}

func (o *CacheConfig) toPartial() *policy.CachePolicyPartial {
	if o == nil {
		return nil
	}
	return &policy.CachePolicyPartial{
		Enabled:    o.Enabled,
		TTLSeconds: o.TTLSeconds,
	}
}
