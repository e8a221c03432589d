// Package router implements the provider-selection Router (C6): static and
// tier-based selection, reading the Complexity Analyzer's recommendation
// per spec §4.6. This is a clean-room component — the gateway's router has
// no DB-backed canary/health-poll analogue to draw from, so it is modeled
// in the general "config-holding struct with a Select method returning a
// decision struct" idiom used throughout the codebase rather than adapted
// from any one file.
package router

import (
	"fmt"

	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/complexity"
)

// Mode is the router's selection strategy.
type Mode string

const (
	ModeStatic Mode = "static"
	ModeTier   Mode = "tier"
)

// Tier is one provider:model pair for a score bucket.
type Tier struct {
	Provider string
	Model    string
}

// Config is the router's static configuration, assembled from the
// Environment collaborator (internal/config) at startup.
type Config struct {
	Mode Mode

	// StaticProvider is used in ModeStatic and as the fallback-to-static
	// target when tier mode is disabled because a tier is unset.
	StaticProvider string

	// Tiers, keyed by bucket. All four must be set for tier mode to be
	// active; otherwise the router silently behaves as ModeStatic.
	Simple    *Tier
	Medium    *Tier
	Complex   *Tier
	Reasoning *Tier

	FallbackProvider string
	FallbackEnabled  bool

	// LocalProviders names the provider identifiers configured against a
	// local family (ollama-native, llamacpp-openai, lmstudio-openai),
	// used to resolve the static-mode force-local/force-cloud override.
	LocalProviders map[string]bool
}

// TierActive reports whether all four tier settings are present.
func (c Config) TierActive() bool {
	return c.Simple != nil && c.Medium != nil && c.Complex != nil && c.Reasoning != nil
}

// EffectiveMode returns the mode actually applied, downgrading ModeTier to
// ModeStatic when any tier setting is unset, per spec §4.6.
func (c Config) EffectiveMode() Mode {
	if c.Mode == ModeTier && !c.TierActive() {
		return ModeStatic
	}
	return c.Mode
}

// Validate enforces the startup invariant that a local provider can never
// be configured as the fallback target.
func (c Config) Validate() error {
	if c.FallbackEnabled && c.LocalProviders[c.FallbackProvider] {
		return fmt.Errorf("router: fallback_provider %q is a local provider family; local providers are forbidden as fallback targets", c.FallbackProvider)
	}
	return nil
}

// Router selects a provider for a request.
type Router struct {
	cfg Config
}

// New constructs a Router, returning an error if cfg fails Validate.
func New(cfg Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Router{cfg: cfg}, nil
}

func bucketFor(score int) func(Config) *Tier {
	switch {
	case score <= 25:
		return func(c Config) *Tier { return c.Simple }
	case score <= 50:
		return func(c Config) *Tier { return c.Medium }
	case score <= 75:
		return func(c Config) *Tier { return c.Complex }
	default:
		return func(c Config) *Tier { return c.Reasoning }
	}
}

// Select picks a provider given the analyzer's result. analyzerResult.Mode
// and analyzerResult.Forced are consulted for static mode's force-local/
// force-cloud override.
func (r *Router) Select(analyzerResult complexity.Result, isLocal func(provider string) bool) canon.RoutingDecision {
	mode := r.cfg.EffectiveMode()

	if mode == ModeTier {
		tier := bucketFor(analyzerResult.Score)(r.cfg)
		return canon.RoutingDecision{
			Provider:  fmt.Sprintf("%s:%s", tier.Provider, tier.Model),
			Method:    canon.MethodTier,
			Score:     analyzerResult.Score,
			Threshold: analyzerResult.Threshold,
			Mode:      analyzerResult.Mode,
		}
	}

	provider := r.cfg.StaticProvider
	method := canon.MethodStatic

	if analyzerResult.Forced {
		switch analyzerResult.Recommendation {
		case complexity.RecommendLocal:
			if !isLocal(provider) && r.cfg.FallbackEnabled {
				provider = r.cfg.FallbackProvider
				method = canon.MethodFallback
			}
		case complexity.RecommendCloud:
			if isLocal(provider) && r.cfg.FallbackEnabled {
				provider = r.cfg.FallbackProvider
				method = canon.MethodFallback
			}
		}
	}

	return canon.RoutingDecision{
		Provider:  provider,
		Method:    method,
		Score:     analyzerResult.Score,
		Threshold: analyzerResult.Threshold,
		Mode:      analyzerResult.Mode,
	}
}

// FallbackEnabled and FallbackProvider are the Dispatcher-facing accessors
// named in spec §4.6.
func (r *Router) FallbackEnabled() bool    { return r.cfg.FallbackEnabled }
func (r *Router) FallbackProvider() string { return r.cfg.FallbackProvider }
