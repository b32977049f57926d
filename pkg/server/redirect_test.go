package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestRedirectToHTTPS(t *testing.T) {
	h := NewRedirectHandler("")

	r := httptest.NewRequest(http.MethodGet, "http://example.com/some/path?q=1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://example.com/some/path?q=1" {
		t.Errorf("Location = %q", got)
	}
}

func TestRedirectStripsPort(t *testing.T) {
	h := NewRedirectHandler("")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "example.com:80"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if got := w.Header().Get("Location"); got != "https://example.com/" {
		t.Errorf("Location = %q", got)
	}
}

func TestHealthServedOnPlainHTTP(t *testing.T) {
	h := NewRedirectHandler("")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without redirect", w.Code)
	}
}

func TestACMEChallengeServed(t *testing.T) {
	webroot := t.TempDir()
	token := "abc123token"
	if err := os.WriteFile(filepath.Join(webroot, token), []byte("proof"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewRedirectHandler(webroot)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/.well-known/acme-challenge/"+token, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "proof" {
		t.Errorf("body = %q, want %q", got, "proof")
	}
}

func TestACMEChallengeTraversalBlocked(t *testing.T) {
	h := NewRedirectHandler(t.TempDir())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/.well-known/acme-challenge/..%2fsecret", nil)
	h.ServeHTTP(w, r)

	if w.Code == http.StatusOK {
		t.Error("traversal path should not be served")
	}
}

func TestACMEDisabledWithoutWebroot(t *testing.T) {
	h := NewRedirectHandler("")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/.well-known/acme-challenge/token", nil))

	if w.Code != http.StatusMovedPermanently {
		t.Errorf("status = %d, want redirect when webroot unset", w.Code)
	}
}
