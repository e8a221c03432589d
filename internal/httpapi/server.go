package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/breaker"
	"github.com/ashgate/gateway/internal/dispatch"
	"github.com/ashgate/gateway/internal/memory"
)

// Deps wires the front door's collaborators.
type Deps struct {
	Dispatcher     *dispatch.Dispatcher
	Memory         *memory.Store
	Breakers       *breaker.Registry
	StaticProvider string
	Logger         *zap.Logger
}

// NewRouter builds the http.Handler serving spec §6's inbound surface:
// POST /messages, POST /responses, /health/live, /health/ready.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	messages := &MessagesHandler{Dispatcher: d.Dispatcher, Memory: d.Memory, Logger: d.Logger}
	responses := &ResponsesHandler{Dispatcher: d.Dispatcher, Memory: d.Memory, Logger: d.Logger}
	health := &HealthHandler{Breakers: d.Breakers, StaticProvider: d.StaticProvider, Logger: d.Logger}

	mux.HandleFunc("POST /messages", messages.Handle)
	mux.HandleFunc("POST /responses", responses.Handle)
	mux.HandleFunc("GET /health/live", health.Live)
	mux.HandleFunc("GET /health/ready", health.Ready)

	return mux
}
