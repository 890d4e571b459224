package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/api"
	"github.com/Mathews-Tom/SubLLM/llm"
)

// healthProbeTimeout bounds the aggregated auth probes. Probes run in
// parallel, so the endpoint answers within one slowest probe.
const healthProbeTimeout = 15 * time.Second

// HealthHandler serves GET /health with liveness plus per-backend auth
// state. A backend being logged out degrades the report but never fails
// the endpoint: the proxy itself is alive.
type HealthHandler struct {
	router  *llm.Router
	version string
	logger  *zap.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(router *llm.Router, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{router: router, version: version, logger: logger}
}

// HandleHealth probes every backend and aggregates the results.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	statuses := h.router.CheckAuth(ctx)

	WriteJSON(w, http.StatusOK, api.HealthResponse{
		Status:    aggregateStatus(statuses),
		Timestamp: time.Now(),
		Version:   h.version,
		Backends:  statuses,
	})
}

// HandleHealthz is the bare liveness probe.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func aggregateStatus(statuses []llm.AuthStatus) string {
	if len(statuses) == 0 {
		return "degraded"
	}
	authenticated := 0
	for _, s := range statuses {
		if s.Authenticated {
			authenticated++
		}
	}
	switch authenticated {
	case len(statuses):
		return "healthy"
	case 0:
		return "unhealthy"
	default:
		return "degraded"
	}
}
