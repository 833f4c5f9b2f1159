package config

import (
	"os"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default values
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 5 * time.Minute
	DefaultServerShutdownTimeout = 30 * time.Second
	DefaultServerMaxBodySize     = 32 << 20
	DefaultRateLimitBurst        = 10

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultProductSourceID        = "产品总图.pdf"
	DefaultProductSourceMatch     = "exact"
	DefaultSubAssemblyMarker      = "组件"
	DefaultComponentSourcePattern = "组件图%d.pdf"
	DefaultMaxParallelScopes      = 4

	DefaultFallbackBaseURL           = "https://api.deepseek.com"
	DefaultFallbackModel             = "deepseek-chat"
	DefaultFallbackTemperature       = float32(0.1)
	DefaultFallbackMaxTokens         = 8000
	DefaultFallbackTimeout           = 180 * time.Second
	DefaultFallbackMaxBOMItems       = 100
	DefaultFallbackRequestsPerSecond = 3.0
	DefaultFallbackBurst             = 5
	DefaultFallbackMaxRetries        = 2
	DefaultFallbackCacheTTL          = 24 * time.Hour

	// FallbackAPIKeyEnv is read when fallback.api_key is not configured.
	FallbackAPIKeyEnv = "DEEPSEEK_API_KEY"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 10
	DefaultRedisKeyPrefix = "bommesh:"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "bommesh"
	DefaultDBMaxConns = 10

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "bommesh-reports"

	DefaultKafkaBroker       = "localhost:9092"
	DefaultKafkaTopic        = "bommesh.matching.completed"
	DefaultKafkaBatchTimeout = 50 * time.Millisecond
	DefaultKafkaWriteTimeout = 10 * time.Second
	DefaultKafkaGroup        = "bommesh-tail"

	DefaultMetricsNamespace = "bommesh"
	DefaultMetricsPath      = "/metrics"
)

// ApplyDefaults fills zero-value fields in cfg. Explicit values always win.
// It runs after unmarshalling and before Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = DefaultRateLimitBurst
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Matching ──────────────────────────────────────────────────────────────
	if cfg.Matching.ProductSourceID == "" {
		cfg.Matching.ProductSourceID = DefaultProductSourceID
	}
	if cfg.Matching.ProductSourceMatch == "" {
		cfg.Matching.ProductSourceMatch = DefaultProductSourceMatch
	}
	if cfg.Matching.SubAssemblyMarker == "" {
		cfg.Matching.SubAssemblyMarker = DefaultSubAssemblyMarker
	}
	if cfg.Matching.ComponentSourcePattern == "" {
		cfg.Matching.ComponentSourcePattern = DefaultComponentSourcePattern
	}
	if cfg.Matching.MaxParallelScopes == 0 {
		cfg.Matching.MaxParallelScopes = DefaultMaxParallelScopes
	}

	// ── Fallback ──────────────────────────────────────────────────────────────
	if cfg.Fallback.BaseURL == "" {
		cfg.Fallback.BaseURL = DefaultFallbackBaseURL
	}
	if cfg.Fallback.APIKey == "" {
		cfg.Fallback.APIKey = os.Getenv(FallbackAPIKeyEnv)
	}
	if cfg.Fallback.Model == "" {
		cfg.Fallback.Model = DefaultFallbackModel
	}
	if cfg.Fallback.Temperature == 0 {
		cfg.Fallback.Temperature = DefaultFallbackTemperature
	}
	if cfg.Fallback.MaxTokens == 0 {
		cfg.Fallback.MaxTokens = DefaultFallbackMaxTokens
	}
	if cfg.Fallback.Timeout == 0 {
		cfg.Fallback.Timeout = DefaultFallbackTimeout
	}
	if cfg.Fallback.MaxBOMItems == 0 {
		cfg.Fallback.MaxBOMItems = DefaultFallbackMaxBOMItems
	}
	if cfg.Fallback.RequestsPerSecond == 0 {
		cfg.Fallback.RequestsPerSecond = DefaultFallbackRequestsPerSecond
	}
	if cfg.Fallback.Burst == 0 {
		cfg.Fallback.Burst = DefaultFallbackBurst
	}
	if cfg.Fallback.MaxRetries == 0 {
		cfg.Fallback.MaxRetries = DefaultFallbackMaxRetries
	}
	if cfg.Fallback.CacheTTL == 0 {
		cfg.Fallback.CacheTTL = DefaultFallbackCacheTTL
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30 * time.Minute
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = DefaultKafkaGroup
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// SubAssemblyMarkerOff in matching.sub_assembly_marker keeps every product
// row in the product scope.
const SubAssemblyMarkerOff = "-"

// EffectiveSubAssemblyMarker is the marker handed to the partitioner; ""
// when exclusion is off.
func (m MatchingConfig) EffectiveSubAssemblyMarker() string {
	if m.SubAssemblyMarker == SubAssemblyMarkerOff {
		return ""
	}
	return m.SubAssemblyMarker
}

// Default returns a fully defaulted Config, as used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
