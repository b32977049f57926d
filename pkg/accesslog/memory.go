package accesslog

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps records in a bounded in-memory ring. It serves tests
// and local runs where persistence is not wanted.
type MemoryBackend struct {
	mu      sync.Mutex
	records []Record
	max     int
}

// NewMemoryBackend creates a memory backend holding at most max records;
// max <= 0 defaults to 10000.
func NewMemoryBackend(max int) *MemoryBackend {
	if max <= 0 {
		max = 10000
	}
	return &MemoryBackend{max: max}
}

// Insert stores one record, discarding the oldest when full.
func (m *MemoryBackend) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) >= m.max {
		m.records = m.records[1:]
	}
	m.records = append(m.records, rec)
	return nil
}

// Prune deletes records older than the cutoff.
func (m *MemoryBackend) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var removed int64
	for _, rec := range m.records {
		if rec.Time.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return removed, nil
}

// Recent returns up to n of the most recent records, newest last.
func (m *MemoryBackend) Recent(n int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.records) {
		n = len(m.records)
	}
	out := make([]Record, n)
	copy(out, m.records[len(m.records)-n:])
	return out
}

// Len returns the stored record count.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryBackend) Close() error { return nil }
