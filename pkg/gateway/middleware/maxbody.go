package middleware

import (
	"fmt"
	"net/http"
)

// MaxBodyMiddleware caps inbound request bodies at limit bytes. A declared
// Content-Length over the limit gets an immediate 413; bodies without a
// declared length are wrapped with http.MaxBytesReader so the handler's
// read fails at the limit instead. limit <= 0 disables the cap.
func MaxBodyMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				fmt.Fprintf(w, `{"error":{"message":%q,"type":%q}}`,
					fmt.Sprintf("Request body exceeds the %d byte limit.", limit),
					"request_too_large")
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
