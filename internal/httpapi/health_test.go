package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/breaker"
)

func TestHealthLiveAlwaysHealthy(t *testing.T) {
	h := &HealthHandler{StaticProvider: "openai", Logger: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()

	h.Live(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "openai", status.Provider)
}

func TestHealthReadyUnhealthyWhenEveryBreakerIsOpen(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: 60 * time.Second})
	b := reg.Get("ollama")
	b.RecordFailure() // trips the breaker open at threshold 1

	h := &HealthHandler{Breakers: reg, Logger: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()

	h.Ready(rec, req)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "fail", status.Checks["breaker:ollama"].Status)
}

func TestHealthReadyHealthyWithNoBreakerActivity(t *testing.T) {
	reg := breaker.NewRegistry(breaker.DefaultConfig())
	reg.Get("openai") // registers it closed, no failures recorded

	h := &HealthHandler{Breakers: reg, Logger: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()

	h.Ready(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}
