// Package config loads the gateway's settings the way the teacher's
// config.Loader does: defaults, then an optional YAML file, then
// environment variables applied last via a reflect-based struct walk
// (config_loader.go's setFieldsFromEnv), keyed by the same "PREFIX_" +
// nested-struct "env" tag scheme. The dynamic provider table (an
// id-keyed map, not a fixed struct) cannot ride that recursive walker,
// so Providers is loaded from YAML only and documented as such below.
package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashgate/gateway/internal/breaker"
	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/metrics"
	"github.com/ashgate/gateway/internal/pool"
	"github.com/ashgate/gateway/internal/retry"
	"github.com/ashgate/gateway/internal/router"
)

// Config is the gateway's full settings tree.
type Config struct {
	Server    ServerConfig              `yaml:"server" env:"SERVER"`
	Providers map[string]ProviderConfig `yaml:"providers" env:"-"`
	Pool      PoolConfig                `yaml:"pool" env:"POOL"`
	Router    RouterConfig              `yaml:"router" env:"ROUTER"`
	Retry     RetryConfig               `yaml:"retry" env:"RETRY"`
	Breaker   BreakerConfig             `yaml:"breaker" env:"BREAKER"`
	Analyzer  AnalyzerConfig            `yaml:"analyzer" env:"ANALYZER"`
	Memory    MemoryConfig              `yaml:"memory" env:"MEMORY"`
	Metrics   MetricsConfig             `yaml:"metrics" env:"METRICS"`
	Log       LogConfig                 `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig           `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig controls the HTTP listener in cmd/gatewayd.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ProviderConfig describes a single upstream entry. Loaded from YAML only:
// a map keyed by caller-assigned provider identifiers has no fixed field
// set for the env-tag walker to recurse into.
type ProviderConfig struct {
	Family     string        `yaml:"family"`
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Deployment string        `yaml:"deployment"`
	Timeout    time.Duration `yaml:"timeout"`
	Local      bool          `yaml:"local"`
}

// PoolConfig feeds internal/pool.Config.
type PoolConfig struct {
	MaxSockets        int64         `yaml:"max_sockets" env:"MAX_SOCKETS"`
	IdleKeepAlive     time.Duration `yaml:"idle_keep_alive" env:"IDLE_KEEP_ALIVE"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// RouterConfig feeds internal/router.Config.
type RouterConfig struct {
	Mode             string `yaml:"mode" env:"MODE"` // static or tier
	StaticProvider   string `yaml:"static_provider" env:"STATIC_PROVIDER"`
	SimpleTier       string `yaml:"simple_tier" env:"SIMPLE_TIER"`             // "provider:model"
	MediumTier       string `yaml:"medium_tier" env:"MEDIUM_TIER"`
	ComplexTier      string `yaml:"complex_tier" env:"COMPLEX_TIER"`
	ReasoningTier    string `yaml:"reasoning_tier" env:"REASONING_TIER"`
	FallbackEnabled  bool   `yaml:"fallback_enabled" env:"FALLBACK_ENABLED"`
	FallbackProvider string `yaml:"fallback_provider" env:"FALLBACK_PROVIDER"`
}

// RetryConfig feeds internal/retry.Policy.
type RetryConfig struct {
	MaxAttempts             int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialDelay            time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay                time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier              float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter                  bool          `yaml:"jitter" env:"JITTER"`
	RateLimitedInitialDelay time.Duration `yaml:"rate_limited_initial_delay" env:"RATE_LIMITED_INITIAL_DELAY"`
}

// BreakerConfig feeds internal/breaker.Config.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	SuccessThreshold int           `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
	OpenTimeout      time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`
}

// AnalyzerConfig tunes the Complexity Analyzer and local-tool-injection
// toggle.
type AnalyzerConfig struct {
	Mode                string `yaml:"mode" env:"MODE"` // aggressive, heuristic, conservative
	AllowLocalInjection bool   `yaml:"allow_local_injection" env:"ALLOW_LOCAL_INJECTION"`
}

// MemoryConfig tunes the memory subsystem (C8).
type MemoryConfig struct {
	Enabled           bool    `yaml:"enabled" env:"ENABLED"`
	DBPath            string  `yaml:"db_path" env:"DB_PATH"`
	SurpriseThreshold float64 `yaml:"surprise_threshold" env:"SURPRISE_THRESHOLD"`
	MaxAgeDays        int     `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	MaxCount          int     `yaml:"max_count" env:"MAX_COUNT"`
	DedupLookback     int     `yaml:"dedup_lookback" env:"DEDUP_LOOKBACK"`
	DecayHalfLifeDays float64 `yaml:"decay_half_life_days" env:"DECAY_HALF_LIFE_DAYS"`
}

// MetricsConfig feeds internal/metrics.Config.
type MetricsConfig struct {
	Namespace                 string  `yaml:"namespace" env:"NAMESPACE"`
	CloudRatePerMillionTokens float64 `yaml:"cloud_rate_per_million_tokens" env:"CLOUD_RATE_PER_MILLION_TOKENS"`
	EncodingModel             string  `yaml:"encoding_model" env:"ENCODING_MODEL"`
}

// LogConfig feeds internal/logging.Config.
type LogConfig struct {
	Level       string   `yaml:"level" env:"LEVEL"`
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig feeds internal/tracing.Config.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" env:"ENABLED"`
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig matches the defaults named throughout spec §4.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Providers: make(map[string]ProviderConfig),
		Pool: PoolConfig{
			MaxSockets:     50,
			IdleKeepAlive:  30 * time.Second,
			RequestTimeout: 60 * time.Second,
		},
		Router: RouterConfig{
			Mode: "static",
		},
		Retry: RetryConfig{
			MaxAttempts:             3,
			InitialDelay:            time.Second,
			MaxDelay:                30 * time.Second,
			Multiplier:              2,
			Jitter:                  true,
			RateLimitedInitialDelay: 5 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      60 * time.Second,
		},
		Analyzer: AnalyzerConfig{
			Mode: "heuristic",
		},
		Memory: MemoryConfig{
			Enabled:           true,
			DBPath:            "gateway_memory.db",
			SurpriseThreshold: 0.3,
			MaxAgeDays:        90,
			MaxCount:          10_000,
			DedupLookback:     5,
			DecayHalfLifeDays: 30,
		},
		Metrics: MetricsConfig{
			Namespace:                 "gateway",
			CloudRatePerMillionTokens: 3.0,
			EncodingModel:             "cl100k_base",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			SampleRate: 1.0,
		},
	}
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads a Config the way config_loader.go's Loader does: defaults,
// then an optional YAML file, then environment variables, in that
// priority order, with validators run last.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader builds a Loader defaulting to the GATEWAY_ env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "GATEWAY",
		validators: []func(*Config) error{ValidateProviders},
	}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load assembles a Config: defaults, YAML overlay, then env overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("config: load file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config: validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively applies environment overrides, following
// each field's "env" tag the same way config_loader.go does. A field
// tagged env:"-" (Providers) is skipped: it has no fixed shape to recurse
// into and is configured via YAML alone.
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads a Config from path, panicking on failure. For use only
// at process startup before any logger exists.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

// =============================================================================
// Validation
// =============================================================================

// ValidateProviders checks that every provider reference used elsewhere in
// the config (router static/tier/fallback targets) names a provider
// actually present in Providers, and that each ProviderConfig's family is
// one of the known families. Per spec §6, an unknown provider identifier
// aborts startup with a listing of the valid ones.
func ValidateProviders(cfg *Config) error {
	valid := make([]string, 0, len(cfg.Providers))
	for id, pc := range cfg.Providers {
		if !isKnownFamily(pc.Family) {
			return fmt.Errorf("provider %q: unknown family %q", id, pc.Family)
		}
		valid = append(valid, id)
	}
	sort.Strings(valid)

	check := func(ref string) error {
		id := ref
		if idx := strings.IndexByte(ref, ':'); idx >= 0 {
			id = ref[:idx]
		}
		if id == "" {
			return nil
		}
		if _, ok := cfg.Providers[id]; !ok {
			return fmt.Errorf("unknown provider %q, valid providers: %s", id, strings.Join(valid, ", "))
		}
		return nil
	}

	for _, ref := range []string{
		cfg.Router.StaticProvider,
		cfg.Router.SimpleTier,
		cfg.Router.MediumTier,
		cfg.Router.ComplexTier,
		cfg.Router.ReasoningTier,
		cfg.Router.FallbackProvider,
	} {
		if err := check(ref); err != nil {
			return err
		}
	}

	return nil
}

func isKnownFamily(family string) bool {
	switch canon.ProviderFamily(family) {
	case canon.FamilyOpenAIChat, canon.FamilyAnthropicNative, canon.FamilyBedrockConverse,
		canon.FamilyOllamaNative, canon.FamilyLlamaCppOpenAI, canon.FamilyLMStudioOpenAI,
		canon.FamilyAzureResponses, canon.FamilyTinyFishSSE:
		return true
	default:
		return false
	}
}

// =============================================================================
// Wiring helpers: translate the loaded Config into the collaborator
// Config/Policy types each internal package expects.
// =============================================================================

// ProviderDescriptors converts the YAML-loaded provider table into the
// map internal/dispatch.Config.Providers expects.
func (c *Config) ProviderDescriptors() map[string]canon.ProviderDescriptor {
	out := make(map[string]canon.ProviderDescriptor, len(c.Providers))
	for id, pc := range c.Providers {
		out[id] = canon.ProviderDescriptor{
			ID:         id,
			Family:     canon.ProviderFamily(pc.Family),
			Endpoint:   pc.Endpoint,
			APIKey:     pc.APIKey,
			Model:      pc.Model,
			Deployment: pc.Deployment,
			Timeout:    pc.Timeout,
		}
	}
	return out
}

// LocalProviderSet names every configured provider identifier whose
// family is local, or whose config explicitly sets Local.
func (c *Config) LocalProviderSet() map[string]bool {
	out := make(map[string]bool, len(c.Providers))
	for id, pc := range c.Providers {
		if pc.Local || canon.ProviderFamily(pc.Family).IsLocal() {
			out[id] = true
		}
	}
	return out
}

// PoolConfig converts PoolConfig into pool.Config.
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		MaxSockets:        c.Pool.MaxSockets,
		IdleKeepAlive:     c.Pool.IdleKeepAlive,
		RequestTimeout:    c.Pool.RequestTimeout,
		RequestsPerSecond: c.Pool.RequestsPerSecond,
	}
}

// MetricsCollectorConfig converts MetricsConfig into metrics.Config,
// filling LocalProviders from the provider table.
func (c *Config) MetricsCollectorConfig() metrics.Config {
	return metrics.Config{
		Namespace:                 c.Metrics.Namespace,
		CloudRatePerMillionTokens: c.Metrics.CloudRatePerMillionTokens,
		LocalProviders:            c.LocalProviderSet(),
		EncodingModel:             c.Metrics.EncodingModel,
	}
}

// RetryPolicy converts RetryConfig into retry.Policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:             c.Retry.MaxAttempts,
		InitialDelay:            c.Retry.InitialDelay,
		MaxDelay:                c.Retry.MaxDelay,
		Multiplier:              c.Retry.Multiplier,
		Jitter:                  c.Retry.Jitter,
		RateLimitedInitialDelay: c.Retry.RateLimitedInitialDelay,
	}
}

// BreakerConfig converts BreakerConfig into breaker.Config.
func (c *Config) BreakerConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		SuccessThreshold: c.Breaker.SuccessThreshold,
		OpenTimeout:      c.Breaker.OpenTimeout,
	}
}

func parseTier(ref string) *router.Tier {
	if ref == "" {
		return nil
	}
	provider, model, found := strings.Cut(ref, ":")
	if !found {
		return &router.Tier{Provider: provider}
	}
	return &router.Tier{Provider: provider, Model: model}
}

// RouterConfig converts RouterConfig into router.Config, resolving tier
// strings of the form "provider:model".
func (c *Config) RouterConfig() router.Config {
	mode := router.ModeStatic
	if c.Router.Mode == "tier" {
		mode = router.ModeTier
	}

	return router.Config{
		Mode:             mode,
		StaticProvider:   c.Router.StaticProvider,
		Simple:           parseTier(c.Router.SimpleTier),
		Medium:           parseTier(c.Router.MediumTier),
		Complex:          parseTier(c.Router.ComplexTier),
		Reasoning:        parseTier(c.Router.ReasoningTier),
		FallbackProvider: c.Router.FallbackProvider,
		FallbackEnabled:  c.Router.FallbackEnabled,
		LocalProviders:   c.LocalProviderSet(),
	}
}

// AnalyzerMode converts the configured analyzer mode string into
// canon.AnalyzerMode, defaulting to heuristic for an unrecognized value.
func (c *Config) AnalyzerMode() canon.AnalyzerMode {
	switch c.Analyzer.Mode {
	case string(canon.ModeAggressive):
		return canon.ModeAggressive
	case string(canon.ModeConservative):
		return canon.ModeConservative
	default:
		return canon.ModeHeuristic
	}
}
