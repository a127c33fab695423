// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps to the `inform:` root key
// in YAML.
type Config struct {
	Listen          string        `mapstructure:"listen"`   // relay listen address
	Upstream        string        `mapstructure:"upstream"` // controller base URL
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	KeysFile        string        `mapstructure:"keys_file"`
	MaxPayloadSize  int           `mapstructure:"max_payload_size"` // bytes, 0 = unlimited
	DecodeWorkers   int           `mapstructure:"decode_workers"`   // 0 = GOMAXPROCS
	Log             LogConfig     `mapstructure:"log"`
	Metrics         MetricsConfig `mapstructure:"metrics"`
	TxLog           TxLogConfig   `mapstructure:"txlog"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string           `mapstructure:"level"`  // debug / info / warn / error
	Format string           `mapstructure:"format"` // json / text
	File   FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures a rotated output file.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// TxLogConfig configures the transaction log of decoded
// request/response pairs.
type TxLogConfig = FileOutputConfig

// configRoot is the top-level wrapper matching the YAML structure `inform: ...`.
type configRoot struct {
	Inform Config `mapstructure:"inform"`
}

// Load loads configuration from file. An empty path only applies
// defaults and environment overrides. Env vars use the INFORM_ prefix
// (e.g. INFORM_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "inform.log.level" maps to env "INFORM_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Inform

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("inform.listen", ":8080")
	v.SetDefault("inform.upstream", "http://192.168.2.11:8080")
	v.SetDefault("inform.upstream_timeout", "30s")
	v.SetDefault("inform.keys_file", "keys.txt")
	v.SetDefault("inform.max_payload_size", 64<<20)
	v.SetDefault("inform.decode_workers", 0)

	v.SetDefault("inform.log.level", "info")
	v.SetDefault("inform.log.format", "text")
	v.SetDefault("inform.log.file.enabled", false)
	v.SetDefault("inform.log.file.path", "inform.log")
	v.SetDefault("inform.log.file.rotation.max_size_mb", 100)
	v.SetDefault("inform.log.file.rotation.max_age_days", 30)
	v.SetDefault("inform.log.file.rotation.max_backups", 5)
	v.SetDefault("inform.log.file.rotation.compress", true)

	v.SetDefault("inform.metrics.enabled", true)
	v.SetDefault("inform.metrics.listen", ":9091")
	v.SetDefault("inform.metrics.path", "/metrics")

	v.SetDefault("inform.txlog.enabled", true)
	v.SetDefault("inform.txlog.path", "txns.jsonl")
	v.SetDefault("inform.txlog.rotation.max_size_mb", 100)
	v.SetDefault("inform.txlog.rotation.max_age_days", 90)
	v.SetDefault("inform.txlog.rotation.max_backups", 10)
	v.SetDefault("inform.txlog.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}
	if cfg.TxLog.Enabled && cfg.TxLog.Path == "" {
		return fmt.Errorf("txlog.path is required when txlog.enabled=true")
	}

	if !strings.HasPrefix(cfg.Upstream, "http://") && !strings.HasPrefix(cfg.Upstream, "https://") {
		return fmt.Errorf("invalid upstream: %q (must be an http:// or https:// URL)", cfg.Upstream)
	}
	cfg.Upstream = strings.TrimSuffix(cfg.Upstream, "/")

	if cfg.MaxPayloadSize < 0 {
		return fmt.Errorf("max_payload_size must not be negative")
	}
	if cfg.DecodeWorkers <= 0 {
		cfg.DecodeWorkers = runtime.GOMAXPROCS(0)
	}
	return nil
}
