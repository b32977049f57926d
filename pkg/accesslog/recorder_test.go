package accesslog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func testRecord(id string, at time.Time) Record {
	return Record{
		ID:          id,
		Time:        at,
		Method:      http.MethodGet,
		Path:        "/api/users",
		ClientIP:    "10.0.0.1",
		Class:       "api",
		Pool:        "workers",
		Target:      "10.1.0.1:8080",
		Status:      http.StatusOK,
		CacheStatus: "MISS",
		Attempts:    1,
		Duration:    12 * time.Millisecond,
		BytesOut:    512,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderWritesThrough(t *testing.T) {
	backend := NewMemoryBackend(100)
	rec := NewRecorder(backend, 16, discardLogger())

	rec.Record(testRecord("r1", time.Now()))
	rec.Record(testRecord("r2", time.Now()))

	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	if got := backend.Len(); got != 2 {
		t.Fatalf("stored records = %d, want 2", got)
	}
	recent := backend.Recent(1)
	if len(recent) != 1 || recent[0].ID != "r2" {
		t.Errorf("Recent(1) = %+v, want the newest record", recent)
	}
	if rec.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", rec.Dropped())
	}
}

func TestRecorderPrune(t *testing.T) {
	backend := NewMemoryBackend(100)
	rec := NewRecorder(backend, 16, discardLogger())
	defer rec.Close()

	old := testRecord("old", time.Now().Add(-48*time.Hour))
	fresh := testRecord("fresh", time.Now())
	backend.Insert(context.Background(), old)
	backend.Insert(context.Background(), fresh)

	pruned, err := rec.Prune(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if got := backend.Len(); got != 1 {
		t.Errorf("remaining = %d, want 1", got)
	}
}

func TestMemoryBackendBounded(t *testing.T) {
	backend := NewMemoryBackend(3)
	for i := 0; i < 5; i++ {
		backend.Insert(context.Background(), testRecord("r", time.Now()))
	}
	if got := backend.Len(); got != 3 {
		t.Errorf("len = %d, want the bound 3", got)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	path := t.TempDir() + "/access.db"
	backend, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	ctx := context.Background()
	now := time.Now()
	if err := backend.Insert(ctx, testRecord("a", now.Add(-48*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := backend.Insert(ctx, testRecord("b", now)); err != nil {
		t.Fatal(err)
	}

	count, err := backend.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	pruned, err := backend.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	count, _ = backend.Count(ctx)
	if count != 1 {
		t.Errorf("count after prune = %d, want 1", count)
	}
}

func TestSQLiteBackendEmptyPath(t *testing.T) {
	if _, err := NewSQLiteBackend(""); err == nil {
		t.Error("empty path should fail")
	}
}
