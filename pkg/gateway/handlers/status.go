package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"kestrel-hq/kestrel/pkg/config"
	"kestrel-hq/kestrel/pkg/upstream"
)

// StatusHandler serves the admin status view: per-target pool state plus
// counters from the cache, the rate limiter, and the access log recorder.
// Counter sources are function fields so the handler stays decoupled from
// the components that own them; nil fields are simply omitted.
type StatusHandler struct {
	Registry  *upstream.Registry
	StartedAt time.Time
	Version   string

	Reloads        func() int64
	CacheEntries   func() int
	RateBuckets    func() int
	DroppedRecords func() int64
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pools := make(map[string]interface{})
	for _, pool := range h.Registry.Pools() {
		targets := make([]map[string]interface{}, 0, len(pool.Targets))
		for _, target := range pool.Targets {
			targets = append(targets, map[string]interface{}{
				"address": target.Address,
				"state":   target.State().String(),
				"active":  target.Active(),
				"weight":  target.Weight,
			})
		}
		pools[pool.Name] = targets
	}

	response := map[string]interface{}{
		"version":        h.Version,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"pools":          pools,
		"timestamp":      time.Now().Unix(),
	}
	if h.Reloads != nil {
		response["config_reloads"] = h.Reloads()
	}
	if h.CacheEntries != nil {
		response["cache_entries"] = h.CacheEntries()
	}
	if h.RateBuckets != nil {
		response["rate_buckets"] = h.RateBuckets()
	}
	if h.DroppedRecords != nil {
		response["access_log_dropped"] = h.DroppedRecords()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ConfigHandler renders the active configuration snapshot as YAML so an
// operator can see exactly what the gateway is running with, including
// applied defaults.
type ConfigHandler struct {
	Store *config.Store
}

func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	out, err := yaml.Marshal(h.Store.Current())
	if err != nil {
		http.Error(w, "failed to render configuration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}
