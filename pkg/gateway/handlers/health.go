package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"kestrel-hq/kestrel/pkg/upstream"
)

// HealthHandler answers liveness probes. It reports on the gateway process
// only and never consults an upstream, so a dead backend cannot make the
// gateway itself look dead.
type HealthHandler struct{}

// NewHealthHandler creates a new liveness handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadyHandler answers readiness probes. The gateway is ready when every
// pool has at least one non-Dead target.
type ReadyHandler struct {
	Registry *upstream.Registry
}

// NewReadyHandler creates a new readiness handler.
func NewReadyHandler(registry *upstream.Registry) *ReadyHandler {
	return &ReadyHandler{Registry: registry}
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pools := h.Registry.Pools()
	poolStatus := make(map[string]interface{}, len(pools))
	ready := len(pools) > 0

	for _, pool := range pools {
		healthy := 0
		for _, target := range pool.Targets {
			if target.State() != upstream.Dead {
				healthy++
			}
		}
		poolStatus[pool.Name] = map[string]interface{}{
			"healthy_targets": healthy,
			"total_targets":   len(pool.Targets),
		}
		if healthy == 0 {
			ready = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"pools":     poolStatus,
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
