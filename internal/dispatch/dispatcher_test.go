package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashgate/gateway/internal/breaker"
	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/pool"
	"github.com/ashgate/gateway/internal/retry"
	"github.com/ashgate/gateway/internal/router"
)

func newTestDispatcher(t *testing.T, providers map[string]canon.ProviderDescriptor, r *router.Router) *Dispatcher {
	t.Helper()
	return New(Config{
		Providers:    providers,
		Breakers:     breaker.NewRegistry(breaker.Config{FailureThreshold: 2, SuccessThreshold: 2, OpenTimeout: time.Minute}),
		RetryPolicy:  retry.Policy{MaxAttempts: 1},
		Pool:         pool.New(pool.DefaultConfig()),
		Router:       r,
		AnalyzerMode: canon.ModeHeuristic,
	})
}

func basicRequest(text string) canon.CanonicalRequest {
	return canon.CanonicalRequest{
		Model: "claude-3",
		Messages: []canon.CanonicalMessage{
			{Role: canon.RoleUser, Content: []canon.ContentBlock{canon.TextBlock(text)}},
		},
	}
}

// Scenario 5 from spec §8.
func TestScenario5CircuitBreakerTriggersFallback(t *testing.T) {
	openaiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"id":    "resp1",
			"model": "gpt-4",
			"choices": []map[string]any{
				{"finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "fallback ok"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer openaiServer.Close()

	providers := map[string]canon.ProviderDescriptor{
		"ollama": {ID: "ollama", Family: canon.FamilyOllamaNative, Endpoint: "http://127.0.0.1:1", Model: "llama3"},
		"openai": {ID: "openai", Family: canon.FamilyOpenAIChat, Endpoint: openaiServer.URL, Model: "gpt-4", APIKey: "k"},
	}

	r, err := router.New(router.Config{
		Mode:             router.ModeStatic,
		StaticProvider:   "ollama",
		FallbackEnabled:  true,
		FallbackProvider: "openai",
		LocalProviders:   map[string]bool{"ollama": true},
	})
	require.NoError(t, err)

	d := newTestDispatcher(t, providers, r)
	req := basicRequest("please summarize this quarter's data")

	// Drive the breaker open: two failing calls against the unreachable
	// Ollama endpoint. Transport failures on a local primary are already
	// fallback-eligible, so these two calls also fall over to openai; what
	// Scenario 5 specifically checks is the third call, made *after* the
	// breaker is open.
	for i := 0; i < 2; i++ {
		_, _, _ = d.Dispatch(context.Background(), req)
	}

	resp, handle, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, handle)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Routing)
	assert.Equal(t, "openai", resp.Routing.Provider)
	assert.Equal(t, canon.MethodFallback, resp.Routing.Method)
	assert.Equal(t, string(FailureCircuitBreaker), resp.Routing.FallbackReason)
}

func TestConfigErrorOnUnknownProvider(t *testing.T) {
	r, err := router.New(router.Config{Mode: router.ModeStatic, StaticProvider: "nonexistent"})
	require.NoError(t, err)
	d := newTestDispatcher(t, map[string]canon.ProviderDescriptor{}, r)

	_, _, err = d.Dispatch(context.Background(), basicRequest("hi there"))
	require.Error(t, err)
	assert.Equal(t, canon.ErrConfig, canon.GetErrorCode(err))
}

func TestSuccessfulDispatchAttachesRoutingDecision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"id":    "resp1",
			"model": "gpt-4",
			"choices": []map[string]any{
				{"finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "hi"}},
			},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	providers := map[string]canon.ProviderDescriptor{
		"openai": {ID: "openai", Family: canon.FamilyOpenAIChat, Endpoint: server.URL, Model: "gpt-4", APIKey: "k"},
	}
	r, err := router.New(router.Config{Mode: router.ModeStatic, StaticProvider: "openai"})
	require.NoError(t, err)
	d := newTestDispatcher(t, providers, r)

	resp, handle, err := d.Dispatch(context.Background(), basicRequest("please analyze this"))
	require.NoError(t, err)
	assert.Nil(t, handle)
	require.NotNil(t, resp)
	assert.Equal(t, "claude-3", resp.Model)
	assert.Equal(t, canon.Usage{InputTokens: 3, OutputTokens: 2}, resp.Usage)
	require.NotNil(t, resp.Routing)
	assert.Equal(t, "openai", resp.Routing.Provider)
	assert.Equal(t, canon.MethodStatic, resp.Routing.Method)
}

// A non-breaker-counted error (e.g. invalid_request/unauthorized) must
// leave the breaker's failure count untouched, per the taxonomy's
// BreakerCounted column (spec §7) — it is neither a failure nor a success
// signal about upstream health. This interleaves a non-counted 401 between
// two counted 500s: if a non-counted error were ever credited as a
// success, it would reset the failure count and the breaker would never
// reach FailureThreshold.
func TestBreakerUntouchedByNonCountedError(t *testing.T) {
	var call int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		switch call {
		case 1, 3:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		case 2:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"bad key"}`))
		}
	}))
	defer server.Close()

	providers := map[string]canon.ProviderDescriptor{
		"openai": {ID: "openai", Family: canon.FamilyOpenAIChat, Endpoint: server.URL, Model: "gpt-4", APIKey: "k"},
	}
	r, err := router.New(router.Config{Mode: router.ModeStatic, StaticProvider: "openai"})
	require.NoError(t, err)
	d := New(Config{
		Providers:    providers,
		Breakers:     breaker.NewRegistry(breaker.Config{FailureThreshold: 2, SuccessThreshold: 2, OpenTimeout: time.Minute}),
		RetryPolicy:  retry.Policy{MaxAttempts: 1},
		Pool:         pool.New(pool.DefaultConfig()),
		Router:       r,
		AnalyzerMode: canon.ModeHeuristic,
	})
	req := basicRequest("hi there")

	_, _, err = d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, canon.ErrUpstreamError, canon.GetErrorCode(err))

	_, _, err = d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, canon.ErrUnauthorized, canon.GetErrorCode(err))
	assert.Equal(t, breaker.Closed, d.cfg.Breakers.Get("openai").State())

	_, _, err = d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, canon.ErrUpstreamError, canon.GetErrorCode(err))
	assert.Equal(t, breaker.Open, d.cfg.Breakers.Get("openai").State())
}
