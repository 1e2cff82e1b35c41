package observability

import (
	"net/http"
	"sync/atomic"
)

// HealthChecker tracks liveness and readiness flags for the process.
// Liveness is set once the process is up; readiness only after
// recovery has completed and the engine is accepting commands.
type HealthChecker struct {
	live  atomic.Bool
	ready atomic.Bool
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) SetLive(live bool)   { h.live.Store(live) }
func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }
func (h *HealthChecker) IsLive() bool        { return h.live.Load() }
func (h *HealthChecker) IsReady() bool       { return h.ready.Load() }

// LivenessHandler serves /healthz.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	if h.IsLive() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not live"))
}

// ReadinessHandler serves /readyz.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if h.IsReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
