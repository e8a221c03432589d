// Package metrics implements the Metrics collector (C9): per-provider
// attempt/success/failure counters, fallback counters by reason, token
// counters, a cost-savings estimate, and per-provider latency histograms,
// exposed both as Prometheus vectors and as a read-only in-memory
// snapshot, grounded on the teacher's metrics.Collector
// (promauto.NewCounterVec/NewHistogramVec, namespace + label-vector
// convention).
package metrics

import (
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/dispatch"
)

// Config tunes cost-savings accounting.
type Config struct {
	Namespace string
	// CloudRatePerMillionTokens is the $/1M token rate charged against
	// requests that landed on a local provider, to estimate the
	// would-have-been cloud cost avoided, per spec §4.9.
	CloudRatePerMillionTokens float64
	// LocalProviders names the provider identifiers configured against a
	// local family, consulted to decide whether a completed request
	// qualifies for the cost-savings estimate.
	LocalProviders map[string]bool
	// EncodingModel selects the tiktoken encoding loaded for
	// estimateTokens (default cl100k_base). RecordSuccess does not use it:
	// token and cost-savings counters come from the reported Usage only.
	EncodingModel string
}

func (c Config) rate() float64 {
	if c.CloudRatePerMillionTokens > 0 {
		return c.CloudRatePerMillionTokens
	}
	return 3.0
}

// providerSnapshot is one provider's accumulated counters, returned by
// Collector.Snapshot.
type providerSnapshot struct {
	Attempts     int64
	Successes    int64
	Failures     map[dispatch.FailureCategory]int64
	TokensIn     int64
	TokensOut    int64
	CostSavingsUSD float64
}

// FallbackSnapshot is one (primary, reason) pair's fallback counters.
type FallbackSnapshot struct {
	Primary    string
	Fallback   string
	Reason     dispatch.FailureCategory
	Attempts   int64
	Successes  int64
	Failures   int64
}

// Snapshot is the read-only view exposed by Collector.Snapshot, per spec
// §4.9's "exposed via a read-only snapshot interface."
type Snapshot struct {
	Providers map[string]providerSnapshot
	Fallbacks []FallbackSnapshot
}

// Collector implements dispatch.Recorder, mirroring every update into both
// Prometheus vectors and an internal snapshot map.
type Collector struct {
	cfg Config

	attemptsTotal  *prometheus.CounterVec
	successesTotal *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	tokensTotal    *prometheus.CounterVec
	costSavings    *prometheus.CounterVec
	latency        *prometheus.HistogramVec

	fallbackAttempts  *prometheus.CounterVec
	fallbackSuccesses *prometheus.CounterVec
	fallbackFailures  *prometheus.CounterVec

	enc *tiktoken.Tiktoken

	mu        sync.Mutex
	providers map[string]*providerCounters
	fallbacks map[fallbackKey]*fallbackCounters
}

type providerCounters struct {
	attempts, successes int64
	failures            map[dispatch.FailureCategory]int64
	tokensIn, tokensOut int64
	costSavings         float64
}

type fallbackKey struct {
	primary, fallback string
	reason            dispatch.FailureCategory
}

type fallbackCounters struct {
	attempts, successes, failures int64
}

// New builds a Collector, registering its Prometheus vectors under
// cfg.Namespace (default "gateway").
func New(cfg Config) *Collector {
	ns := cfg.Namespace
	if ns == "" {
		ns = "gateway"
	}
	encodingModel := cfg.EncodingModel
	if encodingModel == "" {
		encodingModel = "cl100k_base"
	}
	enc, _ := tiktoken.GetEncoding(encodingModel)

	return &Collector{
		cfg: cfg,
		enc: enc,
		attemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "provider_attempts_total", Help: "Total dispatch attempts per provider.",
		}, []string{"provider"}),
		successesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "provider_successes_total", Help: "Total successful dispatches per provider.",
		}, []string{"provider"}),
		failuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "provider_failures_total", Help: "Total failed dispatches per provider, by category.",
		}, []string{"provider", "category"}),
		tokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "tokens_total", Help: "Total tokens exchanged per provider, by direction.",
		}, []string{"provider", "direction"}),
		costSavings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cost_savings_usd_total", Help: "Estimated USD saved by landing on a local provider.",
		}, []string{"provider"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "provider_latency_seconds", Help: "Dispatch latency per provider.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		fallbackAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "fallback_attempts_total", Help: "Total fallback attempts, by primary and reason.",
		}, []string{"primary", "fallback", "reason"}),
		fallbackSuccesses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "fallback_successes_total", Help: "Total successful fallback attempts.",
		}, []string{"primary", "fallback", "reason"}),
		fallbackFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "fallback_failures_total", Help: "Total failed fallback attempts.",
		}, []string{"primary", "fallback", "reason"}),
		providers: make(map[string]*providerCounters),
		fallbacks: make(map[fallbackKey]*fallbackCounters),
	}
}

func (c *Collector) providerCounter(provider string) *providerCounters {
	pc, ok := c.providers[provider]
	if !ok {
		pc = &providerCounters{failures: make(map[dispatch.FailureCategory]int64)}
		c.providers[provider] = pc
	}
	return pc
}

// RecordAttempt implements dispatch.Recorder.
func (c *Collector) RecordAttempt(provider string) {
	c.attemptsTotal.WithLabelValues(provider).Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providerCounter(provider).attempts++
}

// estimateTokens counts text's tokens with the configured tiktoken
// encoding, or as len(text)/4 when no encoding is loaded. RecordSuccess
// does not call it, so a response whose Usage came back zero records zero
// tokens and zero cost savings.
func (c *Collector) estimateTokens(text string) int {
	if c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// RecordSuccess implements dispatch.Recorder.
func (c *Collector) RecordSuccess(provider string, latency time.Duration, usage canon.Usage) {
	c.successesTotal.WithLabelValues(provider).Inc()
	c.latency.WithLabelValues(provider).Observe(latency.Seconds())

	tokensIn, tokensOut := usage.InputTokens, usage.OutputTokens
	c.tokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	c.tokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))

	var savings float64
	if c.cfg.LocalProviders[provider] {
		total := tokensIn + tokensOut
		savings = float64(total) / 1_000_000 * c.cfg.rate()
		c.costSavings.WithLabelValues(provider).Add(savings)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pc := c.providerCounter(provider)
	pc.successes++
	pc.tokensIn += int64(tokensIn)
	pc.tokensOut += int64(tokensOut)
	pc.costSavings += savings
}

// RecordFailure implements dispatch.Recorder.
func (c *Collector) RecordFailure(provider string, category dispatch.FailureCategory) {
	c.failuresTotal.WithLabelValues(provider, string(category)).Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providerCounter(provider).failures[category]++
}

// RecordFallback implements dispatch.Recorder.
func (c *Collector) RecordFallback(primary, fallbackProvider string, reason dispatch.FailureCategory, succeeded bool) {
	c.fallbackAttempts.WithLabelValues(primary, fallbackProvider, string(reason)).Inc()
	if succeeded {
		c.fallbackSuccesses.WithLabelValues(primary, fallbackProvider, string(reason)).Inc()
	} else {
		c.fallbackFailures.WithLabelValues(primary, fallbackProvider, string(reason)).Inc()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := fallbackKey{primary: primary, fallback: fallbackProvider, reason: reason}
	fc, ok := c.fallbacks[key]
	if !ok {
		fc = &fallbackCounters{}
		c.fallbacks[key] = fc
	}
	fc.attempts++
	if succeeded {
		fc.successes++
	} else {
		fc.failures++
	}
}

// Snapshot returns a read-only copy of the internal counters, per spec
// §4.9.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Snapshot{Providers: make(map[string]providerSnapshot, len(c.providers))}
	for id, pc := range c.providers {
		failures := make(map[dispatch.FailureCategory]int64, len(pc.failures))
		for k, v := range pc.failures {
			failures[k] = v
		}
		out.Providers[id] = providerSnapshot{
			Attempts: pc.attempts, Successes: pc.successes, Failures: failures,
			TokensIn: pc.tokensIn, TokensOut: pc.tokensOut, CostSavingsUSD: pc.costSavings,
		}
	}
	for k, fc := range c.fallbacks {
		out.Fallbacks = append(out.Fallbacks, FallbackSnapshot{
			Primary: k.primary, Fallback: k.fallback, Reason: k.reason,
			Attempts: fc.attempts, Successes: fc.successes, Failures: fc.failures,
		})
	}
	return out
}
