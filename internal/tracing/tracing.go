// Package tracing wires the process-wide OpenTelemetry TracerProvider,
// grounded on the teacher's internal/telemetry.Init (resource-with-service-
// metadata + registered global provider shape), but narrowed to the SDK
// package actually vendored here: no OTLP exporter is wired, so spans are
// sampled and processed in-memory and then dropped — a real exporter can
// be added later without touching any span-emitting call site, matching
// D1's "no-op exporter by default" framing.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config tunes the TracerProvider. Enabled=false (the default) registers a
// sampler that never records, making every span a cheap no-op.
type Config struct {
	Enabled    bool
	SampleRate float64 // fraction of spans to sample when Enabled
}

// Providers holds the SDK TracerProvider so callers can Shutdown cleanly.
type Providers struct {
	tp *sdktrace.TracerProvider
}

// Init builds and registers the global TracerProvider per cfg.
func Init(cfg Config) *Providers {
	sampler := sdktrace.NeverSample()
	if cfg.Enabled {
		rate := cfg.SampleRate
		if rate <= 0 {
			rate = 1.0
		}
		sampler = sdktrace.TraceIDRatioBased(rate)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler))
	otel.SetTracerProvider(tp)
	return &Providers{tp: tp}
}

// Shutdown flushes and releases the TracerProvider's resources.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
