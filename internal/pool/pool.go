// Package pool provides process-wide keep-alive HTTP(S) clients with
// bounded concurrency, plus a dedicated long-lived client for SSE
// endpoints, grounded on the teacher's internal/tlsutil package.
package pool

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config tunes the pool. Defaults match spec §4.2.
type Config struct {
	MaxSockets     int64         // default 50
	IdleKeepAlive  time.Duration // default 30s
	RequestTimeout time.Duration // default 60s
	// RequestsPerSecond, if > 0, throttles outbound requests in addition to
	// the MaxSockets concurrency bound. Zero disables the throttle.
	RequestsPerSecond float64
}

// DefaultConfig matches spec §4.2 defaults.
func DefaultConfig() Config {
	return Config{MaxSockets: 50, IdleKeepAlive: 30 * time.Second, RequestTimeout: 60 * time.Second}
}

func secureTransport(idleKeepAlive time.Duration) *http.Transport {
	return &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: idleKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func plainTransport(idleKeepAlive time.Duration) *http.Transport {
	t := secureTransport(idleKeepAlive)
	t.TLSClientConfig = nil
	return t
}

// Pool is the process-wide connection pool singleton: one HTTPS client, one
// plaintext HTTP client, and one SSE client, each behind a semaphore
// bounding concurrent in-flight requests and an optional rate limiter.
type Pool struct {
	cfg Config

	httpsClient *http.Client
	httpClient  *http.Client
	sseClient   *http.Client

	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New builds a Pool from cfg.
func New(cfg Config) *Pool {
	if cfg.MaxSockets <= 0 {
		cfg.MaxSockets = 50
	}
	if cfg.IdleKeepAlive <= 0 {
		cfg.IdleKeepAlive = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	p := &Pool{
		cfg:         cfg,
		httpsClient: &http.Client{Transport: secureTransport(cfg.IdleKeepAlive), Timeout: cfg.RequestTimeout},
		httpClient:  &http.Client{Transport: plainTransport(cfg.IdleKeepAlive), Timeout: cfg.RequestTimeout},
		// SSE: no body-read timeout (streams may be long-lived); the outer
		// wall clock is enforced by the caller's context, not this client.
		sseClient: &http.Client{Transport: secureTransport(cfg.IdleKeepAlive)},
		sem:       semaphore.NewWeighted(cfg.MaxSockets),
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.MaxSockets))
	}
	return p
}

// acquire blocks until a socket slot (and, if configured, a rate-limiter
// token) is available, returning a release function.
func (p *Pool) acquire(ctx context.Context) (func(), error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.sem.Release(1) }, nil
}

// Do executes req on the HTTPS (or HTTP, for plaintext URLs) client, bounded
// by the pool's concurrency limit.
func (p *Pool) Do(req *http.Request) (*http.Response, error) {
	release, err := p.acquire(req.Context())
	if err != nil {
		return nil, err
	}
	defer release()

	client := p.httpsClient
	if req.URL.Scheme == "http" {
		client = p.httpClient
	}
	return client.Do(req)
}

// DoSSE executes req on the dedicated SSE client, bounded by the same
// concurrency limit but without a client-side read timeout.
func (p *Pool) DoSSE(req *http.Request) (*http.Response, error) {
	release, err := p.acquire(req.Context())
	if err != nil {
		return nil, err
	}
	defer release()
	return p.sseClient.Do(req)
}

// Close releases idle connections on every client.
func (p *Pool) Close() {
	p.httpsClient.CloseIdleConnections()
	p.httpClient.CloseIdleConnections()
	p.sseClient.CloseIdleConnections()
}
