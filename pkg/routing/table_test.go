package routing

import (
	"testing"
	"time"

	"kestrel-hq/kestrel/pkg/config"
)

func testRoutes() []config.RouteConfig {
	return []config.RouteConfig{
		{Pattern: "/api/auth/", Class: config.ClassAuth, Pool: "workers"},
		{Pattern: "/api/upload/", Class: config.ClassUpload, Pool: "upload-workers"},
		{Pattern: "/api/", Class: config.ClassAPI, Pool: "workers", Cacheable: true, CacheTTL: 30 * time.Second},
		{Pattern: "/admin/", Class: config.ClassAdmin, Pool: "workers"},
		{Pattern: "/status", Class: config.ClassGeneral, Pool: "workers"},
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	table := NewTable(testRoutes(), "workers")

	tests := []struct {
		name      string
		path      string
		wantClass string
		wantPool  string
	}{
		{"auth prefix beats api prefix", "/api/auth/login", config.ClassAuth, "workers"},
		{"upload prefix", "/api/upload/avatar", config.ClassUpload, "upload-workers"},
		{"api prefix", "/api/widgets", config.ClassAPI, "workers"},
		{"admin prefix", "/admin/users", config.ClassAdmin, "workers"},
		{"exact match", "/status", config.ClassGeneral, "workers"},
		{"exact does not match subpath", "/status/extra", config.ClassGeneral, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := table.Classify(tt.path)
			if rule.Class != tt.wantClass {
				t.Errorf("Classify(%q).Class = %q, want %q", tt.path, rule.Class, tt.wantClass)
			}
			if rule.Pool != tt.wantPool {
				t.Errorf("Classify(%q).Pool = %q, want %q", tt.path, rule.Pool, tt.wantPool)
			}
		})
	}
}

func TestClassifyFallsThroughToDefault(t *testing.T) {
	table := NewTable(testRoutes(), "workers")

	rule := table.Classify("/static/app.css")
	if !rule.Default {
		t.Fatalf("expected default rule for unmatched path, got %+v", rule)
	}
	if rule.Class != config.ClassGeneral {
		t.Errorf("default rule class = %q, want %q", rule.Class, config.ClassGeneral)
	}
	if rule.Cacheable {
		t.Error("default rule must not be cacheable")
	}
}

func TestClassifyCacheability(t *testing.T) {
	table := NewTable(testRoutes(), "workers")

	api := table.Classify("/api/widgets")
	if !api.Cacheable {
		t.Error("api route should be cacheable")
	}
	if api.CacheTTL != 30*time.Second {
		t.Errorf("api route CacheTTL = %s, want 30s", api.CacheTTL)
	}

	auth := table.Classify("/api/auth/login")
	if auth.Cacheable {
		t.Error("auth route must not be cacheable")
	}
}

func TestClassifyEmptyTable(t *testing.T) {
	table := NewTable(nil, "workers")

	rule := table.Classify("/anything")
	if !rule.Default || rule.Pool != "workers" {
		t.Fatalf("empty table should classify to default rule, got %+v", rule)
	}
}

func BenchmarkClassify(b *testing.B) {
	table := NewTable(testRoutes(), "workers")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		table.Classify("/api/widgets/123")
	}
}
