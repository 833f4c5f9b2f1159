package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting.
const envPrefix = "BOMMESH"

// envKeys lists the keys that must be bound explicitly so that pure
// environment configuration (no file) reaches viper.Unmarshal.
var envKeys = []string{
	"server.port", "server.mode", "server.rate_limit_rps",
	"log.level", "log.format",
	"matching.product_source_id", "matching.product_source_match",
	"matching.sub_assembly_marker", "matching.component_source_pattern",
	"matching.max_parallel_scopes", "matching.model_root",
	"fallback.enabled", "fallback.base_url", "fallback.api_key", "fallback.model",
	"fallback.timeout", "fallback.min_confidence", "fallback.cache_enabled",
	"redis.enabled", "redis.addr", "redis.password", "redis.db",
	"database.enabled", "database.host", "database.port", "database.user",
	"database.password", "database.db_name", "database.ssl_mode", "database.auto_migrate",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key",
	"minio.use_ssl", "minio.bucket",
	"kafka.enabled", "kafka.brokers", "kafka.topic",
	"metrics.enabled", "metrics.namespace",
}

// newViper returns a viper instance with YAML type, BOMMESH_ env prefix and
// a "." -> "_" key replacer, so "database.host" reads BOMMESH_DATABASE_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the YAML file at configPath, merges BOMMESH_* overrides, applies
// defaults and validates.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from BOMMESH_* variables only.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv loads configPath when it is set and falls back to LoadFromEnv.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch re-parses configPath whenever it changes on disk and hands the new
// Config to onChange. Invalid intermediate files are reported through onError
// (may be nil) and never reach onChange. Watch does not block.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad is Load that panics; for main() only.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
