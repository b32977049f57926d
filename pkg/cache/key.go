package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Key computes the cache key for a request: method, normalized path,
// sorted query string, and the values of the configured Vary headers.
// Requests that differ only in query parameter order or path dot-segments
// share a key.
//
// The canonical form is hashed so keys have uniform size regardless of URL
// length.
func Key(r *http.Request, varyHeaders []string) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(normalizePath(r.URL.Path))
	b.WriteByte('?')
	b.WriteString(normalizeQuery(r.URL.Query()))

	for _, name := range varyHeaders {
		b.WriteByte('\n')
		b.WriteString(http.CanonicalHeaderKey(name))
		b.WriteString(": ")
		b.WriteString(strings.Join(r.Header.Values(name), ","))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// normalizePath cleans dot-segments and duplicate slashes while preserving
// a trailing slash, which is significant for routing.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	trailing := strings.HasSuffix(p, "/") && p != "/"
	clean := path.Clean(p)
	if trailing {
		clean += "/"
	}
	return clean
}

// normalizeQuery re-encodes query parameters in sorted key order with
// values in original order per key.
func normalizeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
