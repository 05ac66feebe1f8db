package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
)

// HealthResponse is the JSON response from the /healthz endpoint, following
// the teacher's HealthResponse shape (internal/adapter/inbound/http/health.go).
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies CLIP's component health: at least one upstream
// connected, and the response cache/escalation tracker are responsive.
// Unlike the teacher's HealthChecker (sessionStore/rateLimiter/auditService),
// CLIP has no session or rate-limit state — its components are the Upstream
// Registry, Response Cache, and Retry-Escalation Tracker.
type HealthChecker struct {
	upstreams  UpstreamHealthSource
	respCache  CacheStatsSource
	escTracker EscalationStatsSource
	version    string
}

// UpstreamHealthSource is satisfied by service.UpstreamManager.
type UpstreamHealthSource interface {
	ConnectedUpstreamIDs() []string
	AnyConnected() bool
}

// NewHealthChecker creates a HealthChecker. Pass nil for respCache/escTracker
// if either component was never constructed.
func NewHealthChecker(upstreams UpstreamHealthSource, respCache CacheStatsSource, escTracker EscalationStatsSource, version string) *HealthChecker {
	return &HealthChecker{
		upstreams:  upstreams,
		respCache:  respCache,
		escTracker: escTracker,
		version:    version,
	}
}

// Check performs health checks on every component.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	connected := h.upstreams.ConnectedUpstreamIDs()
	if h.upstreams.AnyConnected() {
		checks["upstreams"] = fmt.Sprintf("ok: %d connected", len(connected))
	} else {
		checks["upstreams"] = "unhealthy: no upstream connected"
		healthy = false
	}

	if h.respCache != nil {
		hits, misses := h.respCache.Stats()
		checks["cache"] = fmt.Sprintf("ok: %d entries, %d hits, %d misses", h.respCache.Len(), hits, misses)
	} else {
		checks["cache"] = "not configured"
	}

	if h.escTracker != nil {
		checks["escalation_tracker"] = fmt.Sprintf("ok: %d tracked keys", h.escTracker.Len())
	} else {
		checks["escalation_tracker"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{Status: status, Checks: checks, Version: h.version}
}

// Handler returns an HTTP handler for the /healthz endpoint: 200 when
// healthy, 503 otherwise.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
