package gateway

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"kestrel-hq/kestrel/pkg/cache"
)

// CacheStatusHeader carries HIT|MISS|STALE|BYPASS for observability.
const CacheStatusHeader = "X-Cache-Status"

// hopByHopHeaders are stripped from proxied requests and responses per
// RFC 9110 §7.6.1.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// removeHopByHop strips hop-by-hop headers, including any named by the
// Connection header itself.
func removeHopByHop(h http.Header) {
	for _, conn := range h.Values("Connection") {
		for _, name := range strings.Split(conn, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// copyHeader copies src into dst, skipping hop-by-hop headers.
func copyHeader(dst, src http.Header) {
	for name, values := range src {
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	removeHopByHop(dst)
}

// writeEntry serves a cached entry with the given cache status.
func writeEntry(w http.ResponseWriter, entry *cache.Entry, status string) {
	copyHeader(w.Header(), entry.Header)
	w.Header().Set(CacheStatusHeader, status)
	w.WriteHeader(entry.StatusCode)
	w.Write(entry.Payload)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":%q}}`, message, errType)
}

// writeRateLimited writes the 429 response with its Retry-After header.
// The interval is rounded up so a client that waits the advertised time is
// guaranteed a token.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
		"Request rate limit exceeded. Retry after the advertised interval.")
}

// writeDispatchFailure translates a terminal dispatch error to its
// client-facing status.
func writeDispatchFailure(w http.ResponseWriter, err *DispatchError) {
	switch err.StatusCode() {
	case http.StatusServiceUnavailable:
		writeError(w, http.StatusServiceUnavailable, "service_unavailable",
			"No healthy upstream target is available.")
	case http.StatusGatewayTimeout:
		writeError(w, http.StatusGatewayTimeout, "gateway_timeout",
			"The upstream did not respond in time.")
	default:
		writeError(w, http.StatusBadGateway, "bad_gateway",
			"The upstream connection failed.")
	}
}
