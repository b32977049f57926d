// Package upstreamtest provides a configurable fake upstream worker for
// gateway tests: per-path responses, injectable delays and failures, and a
// request counter for asserting retry and single-flight behavior.
package upstreamtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Response configures what the backend returns for a path.
type Response struct {
	StatusCode int
	Body       string
	Delay      time.Duration
	Headers    map[string]string
}

// Backend is a fake upstream worker.
type Backend struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses map[string]Response
	requests  atomic.Int64
	failing   atomic.Bool
}

// NewBackend starts a backend that answers 200 "ok" for any path until
// SetResponse configures something else.
func NewBackend() *Backend {
	b := &Backend{responses: make(map[string]Response)}
	b.server = httptest.NewServer(http.HandlerFunc(b.handler))
	return b
}

// URL returns the backend's base URL.
func (b *Backend) URL() string { return b.server.URL }

// Addr returns the backend's host:port, the form pool targets use.
func (b *Backend) Addr() string {
	return strings.TrimPrefix(b.server.URL, "http://")
}

// Close shuts the backend down.
func (b *Backend) Close() { b.server.Close() }

// SetResponse configures the response for a path.
func (b *Backend) SetResponse(path string, resp Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[path] = resp
}

// SetFailing makes every request answer 500 until cleared. Health probes
// see it too, so a failing backend goes Dead after enough probe rounds.
func (b *Backend) SetFailing(failing bool) {
	b.failing.Store(failing)
}

// Requests returns how many requests the backend has received.
func (b *Backend) Requests() int64 {
	return b.requests.Load()
}

// ResetRequests zeroes the request counter.
func (b *Backend) ResetRequests() {
	b.requests.Store(0)
}

func (b *Backend) handler(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)

	if b.failing.Load() {
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return
	}

	b.mu.Lock()
	resp, ok := b.responses[r.URL.Path]
	b.mu.Unlock()
	if !ok {
		resp = Response{StatusCode: http.StatusOK, Body: "ok"}
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}
