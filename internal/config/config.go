// Package config defines the configuration structures for BOMMesh. Parsing
// lives in loader.go and defaults in defaults.go; this file holds plain data
// types and validation only.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sections
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimitRPS throttles run submissions per client IP; 0 disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// LogConfig mirrors logging.LogConfig for the `log` section.
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MatchingConfig drives partitioning and the orchestrator.
type MatchingConfig struct {
	// ProductSourceID is the provenance tag of rows extracted from the
	// top-level assembly drawing.
	ProductSourceID string `mapstructure:"product_source_id"`

	// ProductSourceMatch is "exact" or "prefix".
	ProductSourceMatch string `mapstructure:"product_source_match"`

	// SubAssemblyMarker excludes rows from the product scope when their
	// name contains it. Empty takes the default; SubAssemblyMarkerOff
	// disables the exclusion.
	SubAssemblyMarker string `mapstructure:"sub_assembly_marker"`

	// ComponentSourcePattern derives a component's source id from its
	// assembly order when the plan omits it. Must contain one %d verb.
	ComponentSourcePattern string `mapstructure:"component_source_pattern"`

	// ExtraCodePatterns are appended to the built-in code patterns.
	ExtraCodePatterns []string `mapstructure:"extra_code_patterns"`

	MaxParallelScopes int `mapstructure:"max_parallel_scopes"`

	// ModelRoot resolves relative model_file paths of a plan. Paths may not
	// leave it; serve uses the working directory when it is empty.
	ModelRoot string `mapstructure:"model_root"`
}

// FallbackConfig configures the secondary, model-assisted matcher.
type FallbackConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Temperature       float32       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxBOMItems       int           `mapstructure:"max_bom_items"`
	MinConfidence     float64       `mapstructure:"min_confidence"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	CacheEnabled      bool          `mapstructure:"cache_enabled"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN renders the pgx/golang-migrate connection URL. Credentials are
// escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// MinIOConfig holds object storage parameters for report archiving.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`

	// RetentionDays expires archived reports; 0 keeps them forever.
	RetentionDays int `mapstructure:"retention_days"`
}

// KafkaConfig holds event publishing parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ConsumerGroup is used by `bommesh events tail`.
	ConsumerGroup string `mapstructure:"consumer_group"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Matching MatchingConfig `mapstructure:"matching"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of a defaulted Config and returns the
// first problem found. Optional sinks are only checked when enabled.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	switch c.Matching.ProductSourceMatch {
	case "exact", "prefix":
	default:
		return fmt.Errorf("config: matching.product_source_match %q is invalid; expected exact|prefix", c.Matching.ProductSourceMatch)
	}
	if c.Matching.ProductSourceID == "" {
		return fmt.Errorf("config: matching.product_source_id is required")
	}
	if strings.Count(c.Matching.ComponentSourcePattern, "%d") != 1 {
		return fmt.Errorf("config: matching.component_source_pattern %q must contain exactly one %%d", c.Matching.ComponentSourcePattern)
	}
	if c.Matching.MaxParallelScopes < 1 {
		return fmt.Errorf("config: matching.max_parallel_scopes must be >= 1, got %d", c.Matching.MaxParallelScopes)
	}

	if c.Fallback.Enabled {
		if c.Fallback.BaseURL == "" {
			return fmt.Errorf("config: fallback.base_url is required when fallback is enabled")
		}
		if c.Fallback.Model == "" {
			return fmt.Errorf("config: fallback.model is required when fallback is enabled")
		}
		if c.Fallback.MinConfidence < 0 || c.Fallback.MinConfidence > 1 {
			return fmt.Errorf("config: fallback.min_confidence %.2f is out of range [0, 1]", c.Fallback.MinConfidence)
		}
		if c.Fallback.Timeout <= 0 {
			return fmt.Errorf("config: fallback.timeout must be positive")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required")
		}
	}

	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required")
		}
	}

	return nil
}
