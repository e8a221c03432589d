package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/breaker"
	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/complexity"
	"github.com/ashgate/gateway/internal/pool"
	"github.com/ashgate/gateway/internal/retry"
	"github.com/ashgate/gateway/internal/router"
)

var tracer = otel.Tracer("github.com/ashgate/gateway/internal/dispatch")

// FailureCategory classifies a dispatch failure per spec §4.7.
type FailureCategory string

const (
	FailureCircuitBreaker FailureCategory = "circuit_breaker"
	FailureTimeout        FailureCategory = "timeout"
	FailureUnavailable    FailureCategory = "service_unavailable"
	FailureToolIncompat   FailureCategory = "tool_incompatible"
	FailureRateLimited    FailureCategory = "rate_limited"
	FailureOther          FailureCategory = "error"
)

func categorize(err error) FailureCategory {
	switch canon.GetErrorCode(err) {
	case canon.ErrCircuitBreakerOpen:
		return FailureCircuitBreaker
	case canon.ErrTimeout:
		return FailureTimeout
	case canon.ErrTransport:
		return FailureUnavailable
	case canon.ErrToolIncompatible:
		return FailureToolIncompat
	case canon.ErrRateLimited:
		return FailureRateLimited
	default:
		return FailureOther
	}
}

// Recorder is the metrics collaborator (C9); Dispatcher accepts nil (a
// no-op) so it can be exercised before internal/metrics exists.
type Recorder interface {
	RecordAttempt(provider string)
	RecordSuccess(provider string, latency time.Duration, usage canon.Usage)
	RecordFailure(provider string, category FailureCategory)
	RecordFallback(primary, fallbackProvider string, reason FailureCategory, succeeded bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordAttempt(string)                                        {}
func (noopRecorder) RecordSuccess(string, time.Duration, canon.Usage)             {}
func (noopRecorder) RecordFailure(string, FailureCategory)                       {}
func (noopRecorder) RecordFallback(string, string, FailureCategory, bool)         {}

// Config wires a Dispatcher's collaborators.
type Config struct {
	Providers           map[string]canon.ProviderDescriptor
	Breakers            *breaker.Registry
	RetryPolicy         retry.Policy
	Pool                *pool.Pool
	Router              *router.Router
	AnalyzerMode        canon.AnalyzerMode
	Embedder            complexity.Embedder
	AllowLocalInjection bool
	Recorder            Recorder
	Logger              *zap.Logger
}

// Dispatcher executes the C7 lifecycle for a single request.
type Dispatcher struct {
	cfg Config
}

// New constructs a Dispatcher from cfg, filling safe defaults for any
// collaborator left nil so a partially-wired Dispatcher is still usable in
// tests.
func New(cfg Config) *Dispatcher {
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg}
}

// StreamHandle is the opaque streaming handle returned to the HTTP front
// door for stream=true requests; the dispatcher performs no response
// translation on it, per spec §4.7 step 5.
type StreamHandle struct {
	Provider   string
	Response   *http.Response
	StatusCode int
}

func (s *StreamHandle) Close() error {
	if s.Response != nil && s.Response.Body != nil {
		return s.Response.Body.Close()
	}
	return nil
}

// resolveDescriptor looks up a provider identifier, accepting both a bare
// id (static mode) and a "provider:model" pair (tier mode), per spec §4.6.
func (d *Dispatcher) resolveDescriptor(providerRef string) (canon.ProviderDescriptor, error) {
	id, model, hasModel := strings.Cut(providerRef, ":")
	desc, ok := d.cfg.Providers[id]
	if !ok {
		return canon.ProviderDescriptor{}, canon.NewError(canon.ErrConfig, fmt.Sprintf("unknown provider %q", id))
	}
	if hasModel && model != "" {
		desc.Model = model
	}
	return desc, nil
}

func (d *Dispatcher) isLocalProvider(id string) bool {
	id, _, _ = strings.Cut(id, ":")
	desc, ok := d.cfg.Providers[id]
	return ok && desc.Family.IsLocal()
}

// Dispatch runs the full C7 lifecycle for req: route, translate, execute
// under breaker+retry, translate back, with at-most-one fallback attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, req canon.CanonicalRequest) (*canon.CanonicalResponse, *StreamHandle, error) {
	ctx, span := tracer.Start(ctx, "dispatch.ready")
	defer span.End()

	result := complexity.Analyze(ctx, req, d.cfg.AnalyzerMode, d.cfg.Embedder)
	decision := d.cfg.Router.Select(result, d.isLocalProvider)

	resp, handle, err := d.attempt(ctx, req, decision)
	if err == nil {
		if resp != nil {
			resp.Routing = &decision
		}
		return resp, handle, nil
	}

	category := categorize(err)
	primaryIsLocal := d.isLocalProvider(decision.Provider)
	fallbackEligible := canon.FallbackEligible(err) || category == FailureCircuitBreaker

	if !primaryIsLocal || !d.cfg.Router.FallbackEnabled() || !fallbackEligible {
		return nil, nil, err
	}

	span.AddEvent("fallback_translating", trace.WithAttributes(
		attribute.String("primary", decision.Provider),
		attribute.String("reason", string(category)),
	))

	fallbackDecision := canon.RoutingDecision{
		Provider:       d.cfg.Router.FallbackProvider(),
		Method:         canon.MethodFallback,
		Score:          result.Score,
		Threshold:      result.Threshold,
		Mode:           result.Mode,
		FallbackReason: string(category),
	}

	fResp, fHandle, fErr := d.attempt(ctx, req, fallbackDecision)
	d.cfg.Recorder.RecordFallback(decision.Provider, fallbackDecision.Provider, category, fErr == nil)
	if fErr != nil {
		// The fallback's error is preferred as more actionable, per §4.7.
		return nil, nil, fErr
	}
	if fResp != nil {
		fResp.Routing = &fallbackDecision
	}
	return fResp, fHandle, nil
}

// attempt executes one dispatch (primary or fallback) end to end: breaker
// gate, translate, pooled HTTP call (retried if non-streaming), translate
// back.
func (d *Dispatcher) attempt(ctx context.Context, req canon.CanonicalRequest, decision canon.RoutingDecision) (*canon.CanonicalResponse, *StreamHandle, error) {
	desc, err := d.resolveDescriptor(decision.Provider)
	if err != nil {
		return nil, nil, err
	}
	if desc.Endpoint == "" {
		return nil, nil, canon.NewError(canon.ErrConfig, "provider "+decision.Provider+" has no endpoint configured").WithProvider(decision.Provider)
	}

	adapter, ok := families[desc.Family]
	if !ok {
		return nil, nil, canon.NewError(canon.ErrConfig, "unsupported provider family "+string(desc.Family)).WithProvider(decision.Provider)
	}

	b := d.cfg.Breakers.Get(decision.Provider)
	if allowErr := b.Allow(); allowErr != nil {
		return nil, nil, canon.NewError(canon.ErrCircuitBreakerOpen, allowErr.Error()).WithProvider(decision.Provider)
	}

	withTools := resolveTools(req, desc.Family, d.cfg.AllowLocalInjection)
	bodyBytes, err := adapter.translateReq(desc, req, withTools)
	if err != nil {
		b.RecordFailure()
		return nil, nil, err
	}

	d.cfg.Recorder.RecordAttempt(decision.Provider)
	start := time.Now()

	wantStream := req.Stream && streamingCapable(desc.Family)

	if wantStream {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, adapter.endpointURL(desc), bytes.NewReader(bodyBytes))
		if err != nil {
			b.RecordFailure()
			return nil, nil, canon.NewError(canon.ErrTransport, err.Error()).WithProvider(decision.Provider)
		}
		httpReq.Header = adapter.buildHeaders(desc)

		httpResp, err := d.cfg.Pool.DoSSE(httpReq)
		if err != nil {
			b.RecordFailure()
			d.cfg.Recorder.RecordFailure(decision.Provider, categorize(classifyTransportErr(ctx, err)))
			return nil, nil, classifyTransportErr(ctx, err)
		}
		if httpResp.StatusCode >= 400 {
			defer httpResp.Body.Close()
			msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
			apiErr := canon.MapHTTPError(httpResp.StatusCode, string(msg), decision.Provider)
			if canon.BreakerCounted(apiErr) {
				b.RecordFailure()
			}
			return nil, nil, apiErr
		}
		b.RecordSuccess()
		d.cfg.Recorder.RecordSuccess(decision.Provider, time.Since(start), canon.Usage{})
		return nil, &StreamHandle{Provider: decision.Provider, Response: httpResp, StatusCode: httpResp.StatusCode}, nil
	}

	var respBody []byte
	opErr := retry.Do(ctx, d.cfg.RetryPolicy, func(err error) (bool, bool) {
		return canon.IsRetryable(err), canon.GetErrorCode(err) == canon.ErrRateLimited
	}, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, adapter.endpointURL(desc), bytes.NewReader(bodyBytes))
		if err != nil {
			return canon.NewError(canon.ErrTransport, err.Error()).WithProvider(decision.Provider)
		}
		httpReq.Header = adapter.buildHeaders(desc)

		httpResp, err := d.cfg.Pool.Do(httpReq)
		if err != nil {
			return classifyTransportErr(ctx, err)
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return canon.NewError(canon.ErrTransport, err.Error()).WithProvider(decision.Provider)
		}

		if httpResp.StatusCode >= 400 {
			return canon.MapHTTPError(httpResp.StatusCode, string(body), decision.Provider)
		}
		respBody = body
		return nil
	})

	if opErr != nil {
		// Errors like invalid_request/unauthorized/config say nothing about
		// upstream health: per the taxonomy's BreakerCounted column, the
		// breaker must be left untouched, not credited as a success.
		if canon.BreakerCounted(opErr) {
			b.RecordFailure()
		}
		d.cfg.Recorder.RecordFailure(decision.Provider, categorize(opErr))
		return nil, nil, opErr
	}

	out, err := adapter.translateResp(respBody, req.Model)
	if err != nil {
		b.RecordFailure()
		d.cfg.Recorder.RecordFailure(decision.Provider, categorize(err))
		return nil, nil, err
	}

	b.RecordSuccess()
	d.cfg.Recorder.RecordSuccess(decision.Provider, time.Since(start), out.Usage)
	return out, nil, nil
}

// classifyTransportErr distinguishes a context-deadline cancellation
// (timeout, for breaker accounting) from any other transport-level
// failure (connection refused/reset), per spec §5's cancellation clause.
func classifyTransportErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return canon.NewError(canon.ErrTimeout, err.Error())
	}
	return canon.NewError(canon.ErrTransport, err.Error())
}
