package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/breaker"
	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/dispatch"
	"github.com/ashgate/gateway/internal/pool"
	"github.com/ashgate/gateway/internal/retry"
	"github.com/ashgate/gateway/internal/router"
)

// newTestDispatcher wires a Dispatcher whose single "openai" provider
// points at upstream, mirroring spec §8 scenario 1 (static provider,
// OpenAI-chat, no tools).
func newTestDispatcher(t *testing.T, upstream *httptest.Server) *dispatch.Dispatcher {
	t.Helper()
	rtr, err := router.New(router.Config{Mode: router.ModeStatic, StaticProvider: "openai"})
	require.NoError(t, err)

	return dispatch.New(dispatch.Config{
		Providers: map[string]canon.ProviderDescriptor{
			"openai": {ID: "openai", Family: canon.FamilyOpenAIChat, Endpoint: upstream.URL, Model: "gpt-4o"},
		},
		Breakers:    breaker.NewRegistry(breaker.DefaultConfig()),
		RetryPolicy: retry.DefaultPolicy(),
		Pool:        pool.New(pool.DefaultConfig()),
		Router:      rtr,
		Logger:      zap.NewNop(),
	})
}

func TestMessagesHandleHappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	}))
	defer upstream.Close()

	d := newTestDispatcher(t, upstream)
	h := &MessagesHandler{Dispatcher: d, Logger: zap.NewNop()}

	body, _ := json.Marshal(canon.CanonicalRequest{
		Model:    "claude-3-opus",
		Messages: []canon.CanonicalMessage{{Role: canon.RoleUser, Content: []canon.ContentBlock{canon.TextBlock("Hello")}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp canon.CanonicalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "claude-3-opus", resp.Model)
	assert.Equal(t, canon.StopEndTurn, resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "Hi", resp.Content[0].Text)
}

func TestMessagesHandleRejectsMissingModel(t *testing.T) {
	h := &MessagesHandler{Logger: zap.NewNop()}
	body, _ := json.Marshal(canon.CanonicalRequest{Messages: []canon.CanonicalMessage{{Role: canon.RoleUser}}})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesHandleRejectsWrongContentType(t *testing.T) {
	h := &MessagesHandler{Logger: zap.NewNop()}
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesHandleSurfacesUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer upstream.Close()

	d := newTestDispatcher(t, upstream)
	h := &MessagesHandler{Dispatcher: d, Logger: zap.NewNop()}

	body, _ := json.Marshal(canon.CanonicalRequest{
		Model:    "claude-3-opus",
		Messages: []canon.CanonicalMessage{{Role: canon.RoleUser, Content: []canon.ContentBlock{canon.TextBlock("Hello")}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, string(canon.ErrUnauthorized), env.Error.Kind)
}
