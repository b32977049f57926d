package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kestrel-hq/kestrel/pkg/config"
)

func TestStatusHandler(t *testing.T) {
	h := &StatusHandler{
		Registry:     testRegistry("10.0.0.1:8080"),
		StartedAt:    time.Now().Add(-time.Minute),
		Version:      "test",
		Reloads:      func() int64 { return 2 },
		CacheEntries: func() int { return 17 },
		RateBuckets:  func() int { return 5 },
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["version"] != "test" {
		t.Errorf("version = %v", body["version"])
	}
	if body["config_reloads"] != float64(2) {
		t.Errorf("config_reloads = %v, want 2", body["config_reloads"])
	}
	if body["cache_entries"] != float64(17) {
		t.Errorf("cache_entries = %v, want 17", body["cache_entries"])
	}
	if _, ok := body["access_log_dropped"]; ok {
		t.Error("nil source should be omitted")
	}
	if uptime := body["uptime_seconds"].(float64); uptime < 59 {
		t.Errorf("uptime_seconds = %v, want >= 59", uptime)
	}
}

func TestConfigHandlerRendersYAML(t *testing.T) {
	cfg := &config.Config{
		Pools: map[string]config.PoolConfig{
			"workers": {Targets: []config.TargetConfig{{Address: "10.0.0.1:8080"}}},
		},
	}
	config.ApplyDefaults(cfg)

	h := &ConfigHandler{Store: config.NewStore(cfg)}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "10.0.0.1:8080") {
		t.Error("rendered config missing target address")
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "yaml") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
}
