// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/tcpedit/internal/log"
	"firestige.xyz/tcpedit/internal/tcpedit"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `tcpedit:` root key in YAML.
type GlobalConfig struct {
	Log     log.Config    `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	DLT     DLTConfig     `mapstructure:"dlt"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Datalink ───

// DLTConfig selects the datalink plugins of a rewrite session.
type DLTConfig struct {
	Decoder       string `mapstructure:"decoder"` // name or numeric DLT; empty = input file's DLT
	Encoder       string `mapstructure:"encoder"` // empty = same as decoder
	SkipBroadcast bool   `mapstructure:"skip_broadcast"`
	ForceAlign    string `mapstructure:"force_align"` // auto / on / off

	// Plugins holds per-plugin options keyed by plugin name.
	Plugins map[string]map[string]any `mapstructure:"plugins"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `tcpedit: ...`.
type configRoot struct {
	TCPEdit GlobalConfig `mapstructure:"tcpedit"`
}

// Load loads configuration from file. An empty path yields the defaults.
// The YAML file uses `tcpedit:` as root key; env vars use the TCPEDIT_
// prefix (e.g., TCPEDIT_LOG_LEVEL, TCPEDIT_DLT_DECODER).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `tcpedit.` key prefix maps to `TCPEDIT_` in env vars via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.TCPEdit

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "tcpedit." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("tcpedit.log.level", "info")
	v.SetDefault("tcpedit.log.pattern", log.DefaultPattern)
	v.SetDefault("tcpedit.log.time", log.DefaultTime)
	v.SetDefault("tcpedit.log.file.enabled", false)
	v.SetDefault("tcpedit.log.file.path", "/var/log/tcpedit/tcpedit.log")
	v.SetDefault("tcpedit.log.file.max_size_mb", 100)
	v.SetDefault("tcpedit.log.file.max_age_days", 30)
	v.SetDefault("tcpedit.log.file.max_backups", 5)
	v.SetDefault("tcpedit.log.file.compress", true)

	// Metrics defaults
	v.SetDefault("tcpedit.metrics.enabled", false)
	v.SetDefault("tcpedit.metrics.listen", ":9091")
	v.SetDefault("tcpedit.metrics.path", "/metrics")

	// Datalink defaults
	v.SetDefault("tcpedit.dlt.decoder", "")
	v.SetDefault("tcpedit.dlt.encoder", "")
	v.SetDefault("tcpedit.dlt.skip_broadcast", false)
	v.SetDefault("tcpedit.dlt.force_align", string(tcpedit.AlignAuto))
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// ── Datalink validation ──
	mode, err := tcpedit.ParseAlignMode(cfg.DLT.ForceAlign)
	if err != nil {
		return err
	}
	cfg.DLT.ForceAlign = string(mode)

	// viper lowercases keys; plugin lookup is case-insensitive but options
	// are looked up by the canonical lower-case plugin name.
	plugins := make(map[string]map[string]any, len(cfg.DLT.Plugins))
	for name, opts := range cfg.DLT.Plugins {
		plugins[strings.ToLower(name)] = opts
	}
	cfg.DLT.Plugins = plugins

	return nil
}

// SessionConfig converts the datalink section into a session configuration.
func (c *DLTConfig) SessionConfig() tcpedit.Config {
	return tcpedit.Config{
		Decoder:       c.Decoder,
		Encoder:       c.Encoder,
		SkipBroadcast: c.SkipBroadcast,
		ForceAlign:    tcpedit.AlignMode(c.ForceAlign),
		Options:       c.Plugins,
	}
}
