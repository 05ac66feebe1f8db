package config

import "github.com/clip-mcp/clip/internal/domain/policy"

// SetDefaults fills in every documented default (spec.md §6: "all fields
// have documented defaults"). Unlike the teacher's SetDefaults, none of
// CLIP's boolean knobs default to true, so a zero-value viper.IsSet check is
// unnecessary here: an absent "enabled" field and an explicit "enabled":
// false both correctly resolve to disabled.
func (c *RootConfig) SetDefaults() {
	if c.Compression.TokenThreshold == 0 {
		c.Compression.TokenThreshold = 1000
	}
	if c.Compression.MaxOutputTokens == 0 {
		c.Compression.MaxOutputTokens = 500
	}
	if c.Compression.RetryEscalation != nil && c.Compression.RetryEscalation.Cap == 0 {
		c.Compression.RetryEscalation.Cap = policy.DefaultEscalationCap
	}

	if c.Masking != nil && c.Masking.LLMFallbackThreshold == "" {
		c.Masking.LLMFallbackThreshold = "medium"
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = "127.0.0.1:9090"
	}

	for i := range c.Upstreams {
		for name, tool := range c.Upstreams[i].Tools {
			if tool.Cache != nil && tool.Cache.TTLSeconds == nil {
				defaultTTL := 300
				tool.Cache.TTLSeconds = &defaultTTL
				c.Upstreams[i].Tools[name] = tool
			}
		}
	}
}
