// Package breaker implements a per-provider circuit breaker with
// closed/open/half-open states, grounded on the teacher's
// llm/circuitbreaker package but generalized to a configurable
// consecutive-success threshold for closing from half-open (spec §4.1/§8),
// and narrowed to admit exactly one in-flight probe while half-open.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of closed, open, half-open.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow/Call when the breaker is open and the retry
// timeout has not yet elapsed.
var ErrOpen = errors.New("circuit breaker open")

// ErrHalfOpenBusy is returned when a probe is already in flight during the
// half-open state; the spec allows exactly one probe at a time.
var ErrHalfOpenBusy = errors.New("circuit breaker half-open probe in flight")

// Config tunes one Breaker instance.
type Config struct {
	FailureThreshold int           // default 5
	SuccessThreshold int           // default 2 (half-open consecutive successes to close)
	OpenTimeout      time.Duration // default 60s
}

// DefaultConfig matches spec §4.1 defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 60 * time.Second}
}

// Breaker is one provider's circuit breaker. Safe for concurrent use; all
// state is guarded by a single mutex per spec §5.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state        State
	failureCount int
	successCount int
	openUntil    time.Time
	probeBusy    bool
}

// New creates a Breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// State returns the current state, transitioning Open->HalfOpen first if
// the timeout has elapsed (the transition is observable, not just internal
// bookkeeping, per spec: "On first call after the window, breaker
// transitions to half-open").
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpen()
	return b.state
}

func (b *Breaker) maybeTransitionToHalfOpen() {
	if b.state == Open && !b.openUntil.IsZero() && time.Now().After(b.openUntil) {
		b.state = HalfOpen
		b.successCount = 0
		b.probeBusy = false
	}
}

// Allow reports whether a call may proceed now, reserving the single
// half-open probe slot if applicable. Callers that get ErrOpen or
// ErrHalfOpenBusy must not touch the network for this attempt.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpen()

	switch b.state {
	case Closed:
		return nil
	case Open:
		return ErrOpen
	case HalfOpen:
		if b.probeBusy {
			return ErrHalfOpenBusy
		}
		b.probeBusy = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess registers a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.probeBusy = false
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	case Open:
		// stale result racing a transition; ignore
	}
}

// RecordFailure registers a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.open()
		}
	case HalfOpen:
		b.probeBusy = false
		b.open()
	case Open:
		// already open
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.failureCount = 0
	b.successCount = 0
	b.probeBusy = false
	b.openUntil = time.Now().Add(b.cfg.OpenTimeout)
}

// Reset forces the breaker back to closed, used by admin/health tooling.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
	b.probeBusy = false
	b.openUntil = time.Time{}
}

// Call executes fn under breaker protection: fails fast with ErrOpen (or
// ErrHalfOpenBusy) without invoking fn, otherwise records the outcome.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Registry is a process-lifetime map of provider id -> Breaker, created
// lazily on first use per spec §3 ("created lazily on first use, lives
// process-lifetime").
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates a Registry that lazily instantiates breakers with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the Breaker for providerID, creating it if absent.
func (r *Registry) Get(providerID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[providerID]; ok {
		return b
	}
	b := New(r.cfg)
	r.breakers[providerID] = b
	return b
}

// Snapshot returns the current state of every breaker created so far, used
// by the health endpoint.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	ids := make([]string, 0, len(r.breakers))
	brs := make([]*Breaker, 0, len(r.breakers))
	for id, b := range r.breakers {
		ids = append(ids, id)
		brs = append(brs, b)
	}
	r.mu.Unlock()

	out := make(map[string]State, len(ids))
	for i, id := range ids {
		out[id] = brs[i].State()
	}
	return out
}
