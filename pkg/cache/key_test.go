package cache

import (
	"net/http/httptest"
	"testing"
)

func TestKeyQueryOrderInsensitive(t *testing.T) {
	a := httptest.NewRequest("GET", "/api/widgets?b=2&a=1", nil)
	b := httptest.NewRequest("GET", "/api/widgets?a=1&b=2", nil)

	if Key(a, nil) != Key(b, nil) {
		t.Error("query parameter order must not change the key")
	}
}

func TestKeyMethodAndPathSensitive(t *testing.T) {
	get := httptest.NewRequest("GET", "/api/widgets", nil)
	head := httptest.NewRequest("HEAD", "/api/widgets", nil)
	other := httptest.NewRequest("GET", "/api/gadgets", nil)

	if Key(get, nil) == Key(head, nil) {
		t.Error("method must be part of the key")
	}
	if Key(get, nil) == Key(other, nil) {
		t.Error("path must be part of the key")
	}
}

func TestKeyPathNormalization(t *testing.T) {
	a := httptest.NewRequest("GET", "/api//widgets/../widgets", nil)
	b := httptest.NewRequest("GET", "/api/widgets", nil)

	if Key(a, nil) != Key(b, nil) {
		t.Error("dot-segments and duplicate slashes must normalize away")
	}
}

func TestKeyVaryHeaders(t *testing.T) {
	vary := []string{"Accept-Encoding"}

	a := httptest.NewRequest("GET", "/api/widgets", nil)
	a.Header.Set("Accept-Encoding", "gzip")
	b := httptest.NewRequest("GET", "/api/widgets", nil)
	b.Header.Set("Accept-Encoding", "br")

	if Key(a, vary) == Key(b, vary) {
		t.Error("configured Vary header values must split the key")
	}

	// Headers outside the Vary set must not affect the key.
	c := httptest.NewRequest("GET", "/api/widgets", nil)
	c.Header.Set("Accept-Encoding", "gzip")
	c.Header.Set("User-Agent", "curl/8")
	if Key(a, vary) != Key(c, vary) {
		t.Error("headers outside the Vary set must not change the key")
	}
}
