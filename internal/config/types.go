// Package config provides configuration loading for CLIP.
//
// The schema is intentionally much smaller than a general-purpose gateway's:
// CLIP has no auth, audit, rate-limiting, or HTTP gateway layers (spec.md's
// Deliberately-out-of-scope list) — only upstreams, compression, masking,
// defaults, logging (spec.md §6), and a server block for the metrics address.
package config

// RootConfig is the top-level JSON configuration file (spec.md §6).
type RootConfig struct {
	Upstreams   []UpstreamConfig  `json:"upstreams" mapstructure:"upstreams" validate:"required,min=1,dive"`
	Compression CompressionConfig `json:"compression" mapstructure:"compression" validate:"required"`
	Masking     *MaskingConfig    `json:"masking,omitempty" mapstructure:"masking"`
	Defaults    *DefaultsConfig   `json:"defaults,omitempty" mapstructure:"defaults"`
	Logging     *LoggingConfig    `json:"logging,omitempty" mapstructure:"logging"`
	Server      *ServerConfig     `json:"server,omitempty" mapstructure:"server"`
}

// ServerConfig carries the listen address for CLIP's ambient HTTP
// metrics/health endpoint. It is not part of the MCP protocol surface
// (spec.md's "transport framing is out of scope"); it only exists so
// Observability has somewhere to bind.
type ServerConfig struct {
	MetricsAddr string `json:"metricsAddr,omitempty" mapstructure:"metricsAddr"`
}

// UpstreamConfig is one configured upstream MCP server (spec.md §3
// UpstreamConfig).
type UpstreamConfig struct {
	ID        string            `json:"id" mapstructure:"id" validate:"required"`
	Name      string            `json:"name" mapstructure:"name" validate:"required"`
	Transport string            `json:"transport" mapstructure:"transport" validate:"required,oneof=stdio sse"`
	Command   string            `json:"command,omitempty" mapstructure:"command"`
	Args      []string          `json:"args,omitempty" mapstructure:"args"`
	Env       map[string]string `json:"env,omitempty" mapstructure:"env"`
	URL       string            `json:"url,omitempty" mapstructure:"url" validate:"omitempty,url"`

	Defaults *DefaultsConfig       `json:"defaults,omitempty" mapstructure:"defaults"`
	Tools    map[string]ToolConfig `json:"tools,omitempty" mapstructure:"tools"`
}

// ToolConfig is a partial, per-tool override layer (spec.md §3 ToolConfig).
// All fields are optional; an absent field means "inherit".
type ToolConfig struct {
	Hidden               *bool                `json:"hidden,omitempty" mapstructure:"hidden"`
	OverwriteDescription *string              `json:"overwriteDescription,omitempty" mapstructure:"overwriteDescription"`
	HideParameters       []string             `json:"hideParameters,omitempty" mapstructure:"hideParameters"`
	ParameterOverrides   map[string]any       `json:"parameterOverrides,omitempty" mapstructure:"parameterOverrides"`
	Compression          *CompressionOverride `json:"compression,omitempty" mapstructure:"compression"`
	Masking              *MaskingOverride     `json:"masking,omitempty" mapstructure:"masking"`
	Cache                *CacheConfig         `json:"cache,omitempty" mapstructure:"cache"`
}

// CompressionConfig is the global compression policy plus the LLM endpoint
// used to run it. Only llmConfig is required at the global layer; enabled
// defaults to false and tokenThreshold/maxOutputTokens to 1000/500. Every
// other layer may override a subset and leaves the rest inherited.
type CompressionConfig struct {
	Enabled            bool                   `json:"enabled" mapstructure:"enabled"`
	TokenThreshold     int                    `json:"tokenThreshold" mapstructure:"tokenThreshold" validate:"min=0"`
	MaxOutputTokens    int                    `json:"maxOutputTokens" mapstructure:"maxOutputTokens" validate:"min=1"`
	CustomInstructions string                 `json:"customInstructions,omitempty" mapstructure:"customInstructions"`
	GoalAware          bool                   `json:"goalAware,omitempty" mapstructure:"goalAware"`
	RetryEscalation    *RetryEscalationConfig `json:"retryEscalation,omitempty" mapstructure:"retryEscalation"`
	BypassEnabled      bool                   `json:"bypassEnabled,omitempty" mapstructure:"bypassEnabled"`
	LLMConfig          LLMConfig              `json:"llmConfig" mapstructure:"llmConfig" validate:"required"`
}

// CompressionOverride is a partial compression layer for upstream/tool
// scopes: every field is a pointer so "absent" is distinguishable from
// "explicitly zero".
type CompressionOverride struct {
	Enabled            *bool   `json:"enabled,omitempty" mapstructure:"enabled"`
	TokenThreshold     *int    `json:"tokenThreshold,omitempty" mapstructure:"tokenThreshold"`
	MaxOutputTokens    *int    `json:"maxOutputTokens,omitempty" mapstructure:"maxOutputTokens"`
	CustomInstructions *string `json:"customInstructions,omitempty" mapstructure:"customInstructions"`
	GoalAware          *bool   `json:"goalAware,omitempty" mapstructure:"goalAware"`
}

// RetryEscalationConfig is the global-only repeat-call escalation setting
// (spec.md §3 RetryEscalation).
type RetryEscalationConfig struct {
	Enabled         bool    `json:"enabled" mapstructure:"enabled"`
	WindowSeconds   int     `json:"windowSeconds" mapstructure:"windowSeconds" validate:"required_if=Enabled true,min=0"`
	TokenMultiplier float64 `json:"tokenMultiplier" mapstructure:"tokenMultiplier" validate:"required_if=Enabled true,min=0"`
	Cap             int     `json:"cap,omitempty" mapstructure:"cap" validate:"min=0"`
}

// MaskingConfig is the global masking policy plus its optional LLM fallback
// endpoint (spec.md §4.D).
type MaskingConfig struct {
	Enabled              bool       `json:"enabled" mapstructure:"enabled"`
	PIITypes             []string   `json:"piiTypes,omitempty" mapstructure:"piiTypes"`
	LLMFallback          bool       `json:"llmFallback,omitempty" mapstructure:"llmFallback"`
	LLMFallbackThreshold string     `json:"llmFallbackThreshold,omitempty" mapstructure:"llmFallbackThreshold" validate:"omitempty,oneof=low medium high"`
	LLMConfig            *LLMConfig `json:"llmConfig,omitempty" mapstructure:"llmConfig" validate:"required_if=LLMFallback true"`
}

// MaskingOverride is a partial masking layer for upstream/tool scopes.
type MaskingOverride struct {
	Enabled              *bool    `json:"enabled,omitempty" mapstructure:"enabled"`
	PIITypes             []string `json:"piiTypes,omitempty" mapstructure:"piiTypes"`
	LLMFallback          *bool    `json:"llmFallback,omitempty" mapstructure:"llmFallback"`
	LLMFallbackThreshold *string  `json:"llmFallbackThreshold,omitempty" mapstructure:"llmFallbackThreshold"`
}

// CacheConfig is a cache policy layer (global default, upstream default, or
// tool override — all three share this shape; absence of a pointer field
// means inherit).
type CacheConfig struct {
	Enabled    *bool `json:"enabled,omitempty" mapstructure:"enabled"`
	TTLSeconds *int  `json:"ttlSeconds,omitempty" mapstructure:"ttlSeconds" validate:"omitempty,min=0"`
}

// DefaultsConfig bundles the three overridable policy scopes, used both at
// the root (global defaults) and per-upstream (upstream defaults).
type DefaultsConfig struct {
	Compression *CompressionOverride `json:"compression,omitempty" mapstructure:"compression"`
	Masking     *MaskingOverride     `json:"masking,omitempty" mapstructure:"masking"`
	Cache       *CacheConfig         `json:"cache,omitempty" mapstructure:"cache"`
}

// LLMConfig is the connection configuration for an external LLM endpoint,
// shared by the summarizer and the masker's LLM fallback pass (spec.md §3
// "llmConfig: {baseUrl, model, apiKey?}").
type LLMConfig struct {
	BaseURL string `json:"baseUrl" mapstructure:"baseUrl" validate:"required,url"`
	Model   string `json:"model" mapstructure:"model" validate:"required"`
	APIKey  string `json:"apiKey,omitempty" mapstructure:"apiKey"`
}

// LoggingConfig configures CLIP's structured logger.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `json:"format,omitempty" mapstructure:"format" validate:"omitempty,oneof=json text"`
}
