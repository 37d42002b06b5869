// Package config loads the operational knobs in pkg/types.Config from a
// YAML file plus environment overrides, via Viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/spf13/viper"
)

// Load reads configuration from configPath (if non-empty and present),
// overlays environment variables prefixed ACE_ (e.g. ACE_SESSION_WINDOW_HOURS),
// and returns the result merged onto DefaultConfig. A missing configPath is
// not an error — the defaults plus env stand alone for a local demo run.
func Load(configPath string) (types.Config, error) {
	cfg := types.DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("ACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults seeds viper with DefaultConfig's values so env-only overrides
// (no config file at all) still resolve every knob.
func setDefaults(v *viper.Viper, cfg types.Config) {
	v.SetDefault("paths.state_root", cfg.Paths.StateRoot)
	v.SetDefault("paths.data_dir", cfg.Paths.DataDir)
	v.SetDefault("paths.session_dir", cfg.Paths.SessionDir)
	v.SetDefault("paths.reflection_dir", cfg.Paths.ReflectionDir)
	v.SetDefault("paths.diagnostic_dir", cfg.Paths.DiagnosticDir)
	v.SetDefault("paths.bundle_dir", cfg.Paths.BundleDir)

	v.SetDefault("pair", cfg.Pair)
	v.SetDefault("session_window_hours", cfg.SessionWindowHours)
	v.SetDefault("session_open_utc", cfg.SessionOpenUTC)
	v.SetDefault("candle_interval", cfg.CandleInterval)
	v.SetDefault("pip_scale", cfg.PipScale)
	v.SetDefault("default_pip_scale", cfg.DefaultPipScale)

	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.max_output_tokens", cfg.LLM.MaxOutputTokens)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)

	v.SetDefault("prune_helpful_margin", cfg.PruneHelpfulMargin)
	v.SetDefault("prune_min_harmful", cfg.PruneMinHarmful)
	v.SetDefault("max_reflection_insights", cfg.MaxReflectionInsights)
	v.SetDefault("bundle_retention_days", cfg.BundleRetentionDays)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.websocket_path", cfg.Server.WebSocketPath)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.enable_metrics", cfg.Server.EnableMetrics)

	v.SetDefault("data_fetch_timeout", cfg.DataFetchTimeout)
}
