package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads path as JSON, applies environment overrides (CLIP_-prefixed),
// fills in documented defaults, and validates the result. Per spec.md §6
// ("unknown fields are rejected"), fields with no matching struct tag fail
// loading rather than being silently ignored.
func Load(path string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	// CLIP_COMPRESSION_TOKENTHRESHOLD overrides compression.tokenThreshold, etc.
	v.SetEnvPrefix("CLIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindNestedEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg RootConfig
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindNestedEnvKeys binds the global scalar knobs most likely to be
// overridden per-deployment. Upstreams and per-tool overrides are arrays/maps
// and are expected to come from the config file, not the environment.
func bindNestedEnvKeys(v *viper.Viper) {
	_ = v.BindEnv("compression.enabled")
	_ = v.BindEnv("compression.tokenThreshold")
	_ = v.BindEnv("compression.maxOutputTokens")
	_ = v.BindEnv("compression.bypassEnabled")
	_ = v.BindEnv("compression.llmConfig.baseUrl")
	_ = v.BindEnv("compression.llmConfig.model")
	_ = v.BindEnv("compression.llmConfig.apiKey")
	_ = v.BindEnv("masking.enabled")
	_ = v.BindEnv("masking.llmFallback")
	_ = v.BindEnv("logging.level")
	_ = v.BindEnv("logging.format")
}
