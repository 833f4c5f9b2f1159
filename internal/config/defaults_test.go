package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	t.Setenv(FallbackAPIKeyEnv, "sk-test")

	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultSubAssemblyMarker, cfg.Matching.SubAssemblyMarker)
	assert.Equal(t, "组件图%d.pdf", cfg.Matching.ComponentSourcePattern)
	assert.Equal(t, "deepseek-chat", cfg.Fallback.Model)
	assert.Equal(t, 180*time.Second, cfg.Fallback.Timeout)
	assert.Equal(t, 100, cfg.Fallback.MaxBOMItems)
	assert.Equal(t, "sk-test", cfg.Fallback.APIKey)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Fallback.Enabled)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9090
	cfg.Matching.SubAssemblyMarker = "assembly"
	cfg.Fallback.APIKey = "explicit"
	ApplyDefaults(cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "assembly", cfg.Matching.SubAssemblyMarker)
	assert.Equal(t, "explicit", cfg.Fallback.APIKey)
}

func TestEffectiveSubAssemblyMarker(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.Equal(t, DefaultSubAssemblyMarker, cfg.Matching.EffectiveSubAssemblyMarker())

	cfg.Matching.SubAssemblyMarker = SubAssemblyMarkerOff
	ApplyDefaults(cfg)
	assert.Equal(t, SubAssemblyMarkerOff, cfg.Matching.SubAssemblyMarker)
	assert.Empty(t, cfg.Matching.EffectiveSubAssemblyMarker())
}
