package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/breaker"
)

// HealthStatus is the body returned from /health/live and /health/ready,
// grounded on the teacher's HealthStatus/CheckResult shape (health.go),
// narrowed to the fields spec §6 names: {status, provider, checks}.
type HealthStatus struct {
	Status   string                 `json:"status"`
	Provider string                 `json:"provider,omitempty"`
	Checks   map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is one named check's outcome.
type CheckResult struct {
	Status  string `json:"status"` // pass, fail
	Message string `json:"message,omitempty"`
}

// HealthHandler serves /health/live and /health/ready.
type HealthHandler struct {
	Breakers       *breaker.Registry
	StaticProvider string
	Logger         *zap.Logger
}

// Live always reports healthy once the process can answer HTTP at all,
// per spec §6's liveness/readiness split.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: "healthy", Provider: h.StaticProvider})
}

// Ready additionally reports unhealthy (503) when every configured
// provider's breaker is open, since no dispatch could currently succeed,
// and degraded (200) when only some of them are open.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]CheckResult{}
	status := "healthy"

	if h.Breakers != nil {
		snap := h.Breakers.Snapshot()
		open, total := 0, len(snap)
		for provider, state := range snap {
			result := CheckResult{Status: "pass"}
			if state == breaker.Open {
				result = CheckResult{Status: "fail", Message: "circuit breaker open"}
				open++
			}
			checks["breaker:"+provider] = result
		}
		if total > 0 && open == total {
			status = "unhealthy"
		} else if open > 0 {
			status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	WriteJSON(w, httpStatus, HealthStatus{Status: status, Provider: h.StaticProvider, Checks: checks})
}
