package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusDegraded     = "degraded"
	healthStatusUnavailable  = "unavailable"
)

const (
	// detailedCheckTimeout bounds each dependency check on /healthz/detailed.
	detailedCheckTimeout = 5 * time.Second

	// defaultCheckCacheTTL is how long dependency check results are reused.
	// /healthz/detailed is unauthenticated, so requests must not reach the
	// directory or the token endpoint more often than this.
	defaultCheckCacheTTL = 30 * time.Second
)

// CheckFunc probes a dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool
	// shuttingDown is set once graceful shutdown has begun
	shuttingDown atomic.Bool

	startTime time.Time
	version   string

	mu     sync.RWMutex
	checks map[string]CheckFunc

	// runMu serializes check runs and guards the cached results
	runMu       sync.Mutex
	cacheTTL    time.Duration
	lastRun     time.Time
	lastResults map[string]string
	now         func() time.Time
}

// NewHealthChecker creates a HealthChecker that reports ready.
func NewHealthChecker(version string) *HealthChecker {
	h := &HealthChecker{
		startTime: time.Now(),
		version:   version,
		checks:    make(map[string]CheckFunc),
		cacheTTL:  defaultCheckCacheTTL,
		now:       time.Now,
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load() && !h.shuttingDown.Load()
}

// SetShuttingDown marks the server as draining.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// AddCheck registers a dependency check reported by /healthz/detailed.
// Checks are not run by the readiness probe, so a flaky upstream does not
// take the server out of rotation. Results are cached for 30 seconds.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()

	h.runMu.Lock()
	h.lastResults = nil
	h.runMu.Unlock()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func writeHealth(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness probes indicate whether the process should be restarted.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
// Readiness probes indicate whether the server is ready to receive traffic.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := map[string]string{
			"ready":    healthStatusOK,
			"shutdown": healthStatusOK,
		}
		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
		}
		if h.shuttingDown.Load() {
			checks["shutdown"] = healthStatusShuttingDown
		}

		if !h.IsReady() {
			writeHealth(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
			return
		}
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed
// endpoint. It runs every registered dependency check.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := DetailedHealthResponse{
			Status:  healthStatusOK,
			Version: h.version,
			Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
			Checks:  h.runChecks(r.Context()),
		}

		status := http.StatusOK
		switch {
		case h.shuttingDown.Load():
			response.Status = healthStatusShuttingDown
			status = http.StatusServiceUnavailable
		case !h.ready.Load():
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		default:
			for _, result := range response.Checks {
				if result != healthStatusOK {
					response.Status = healthStatusDegraded
					break
				}
			}
		}

		writeHealth(w, status, response)
	})
}

// runChecks returns the dependency check results, running the checks only
// when the cached results are older than cacheTTL. Concurrent callers wait
// for a single run.
func (h *HealthChecker) runChecks(ctx context.Context) map[string]string {
	h.runMu.Lock()
	defer h.runMu.Unlock()

	if h.lastResults != nil && h.now().Sub(h.lastRun) < h.cacheTTL {
		return copyResults(h.lastResults)
	}

	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()
	if len(checks) == 0 {
		return nil
	}

	// A client disconnect must not be cached as a dependency failure
	ctx = context.WithoutCancel(ctx)
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, detailedCheckTimeout)
		if err := check(checkCtx); err != nil {
			results[name] = healthStatusUnavailable
		} else {
			results[name] = healthStatusOK
		}
		cancel()
	}

	h.lastRun = h.now()
	h.lastResults = results
	return copyResults(results)
}

func copyResults(results map[string]string) map[string]string {
	out := make(map[string]string, len(results))
	for name, result := range results {
		out[name] = result
	}
	return out
}

// RegisterHealthEndpoints registers health check endpoints on r.
func (h *HealthChecker) RegisterHealthEndpoints(r chi.Router) {
	r.Method(http.MethodGet, "/healthz", h.LivenessHandler())
	r.Method(http.MethodGet, "/readyz", h.ReadinessHandler())
	r.Method(http.MethodGet, "/healthz/detailed", h.DetailedHealthHandler())
}
