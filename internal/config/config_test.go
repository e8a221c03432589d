package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashgate/gateway/internal/canon"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAppliedWithNoFileOrEnv(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "heuristic", cfg.Analyzer.Mode)
}

func TestYAMLOverlayAppliesProviders(t *testing.T) {
	path := writeYAML(t, `
providers:
  ollama:
    family: ollama-native
    endpoint: http://localhost:11434
    model: llama3
    local: true
  openai:
    family: openai-chat-family
    endpoint: https://api.openai.com/v1
    api_key: sk-test
    model: gpt-4o
router:
  mode: static
  static_provider: ollama
  fallback_enabled: true
  fallback_provider: openai
`)
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	require.Contains(t, cfg.Providers, "ollama")
	require.Contains(t, cfg.Providers, "openai")
	assert.Equal(t, "ollama-native", cfg.Providers["ollama"].Family)
	assert.True(t, cfg.Providers["ollama"].Local)
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	path := writeYAML(t, "server:\n  http_port: 9000\n")
	t.Setenv("GATEWAY_SERVER_HTTP_PORT", "7000")
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.HTTPPort)
}

func TestEnvDurationParsing(t *testing.T) {
	t.Setenv("GATEWAY_RETRY_INITIAL_DELAY", "2500ms")
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.Retry.InitialDelay)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "debug")
	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateProvidersRejectsUnknownStaticProvider(t *testing.T) {
	path := writeYAML(t, `
providers:
  ollama:
    family: ollama-native
router:
  static_provider: does-not-exist
`)
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist")
	assert.Contains(t, err.Error(), "ollama")
}

func TestValidateProvidersRejectsUnknownFamily(t *testing.T) {
	path := writeYAML(t, `
providers:
  weird:
    family: not-a-real-family
`)
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown family")
}

func TestValidateProvidersAcceptsTierProviderModelRef(t *testing.T) {
	path := writeYAML(t, `
providers:
  ollama:
    family: ollama-native
router:
  mode: tier
  simple_tier: "ollama:llama3"
`)
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "ollama:llama3", cfg.Router.SimpleTier)
}

func TestProviderDescriptorsConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["ollama"] = ProviderConfig{
		Family:   "ollama-native",
		Endpoint: "http://localhost:11434",
		Model:    "llama3",
		Local:    true,
	}
	descs := cfg.ProviderDescriptors()
	require.Contains(t, descs, "ollama")
	assert.Equal(t, canon.FamilyOllamaNative, descs["ollama"].Family)

	locals := cfg.LocalProviderSet()
	assert.True(t, locals["ollama"])
}

func TestRouterConfigParsesTierRefs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Router.Mode = "tier"
	cfg.Router.SimpleTier = "ollama:llama3"
	rc := cfg.RouterConfig()
	require.NotNil(t, rc.Simple)
	assert.Equal(t, "ollama", rc.Simple.Provider)
	assert.Equal(t, "llama3", rc.Simple.Model)
}

func TestPoolConfigDefaultsAndConversion(t *testing.T) {
	cfg := DefaultConfig()
	assert.EqualValues(t, 50, cfg.Pool.MaxSockets)
	assert.Equal(t, 30*time.Second, cfg.Pool.IdleKeepAlive)

	pc := cfg.PoolConfig()
	assert.EqualValues(t, 50, pc.MaxSockets)
	assert.Equal(t, 60*time.Second, pc.RequestTimeout)
}

func TestMetricsCollectorConfigConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["ollama"] = ProviderConfig{Family: "ollama-native", Local: true}
	mc := cfg.MetricsCollectorConfig()
	assert.Equal(t, "gateway", mc.Namespace)
	assert.Equal(t, 3.0, mc.CloudRatePerMillionTokens)
	assert.True(t, mc.LocalProviders["ollama"])
}

func TestAnalyzerModeDefaultsToHeuristicOnUnknownValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analyzer.Mode = "bogus"
	assert.Equal(t, canon.ModeHeuristic, cfg.AnalyzerMode())
}
