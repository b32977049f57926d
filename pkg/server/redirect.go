package server

import (
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"kestrel-hq/kestrel/pkg/gateway/handlers"
)

// acmeChallengePrefix is the well-known path ACME HTTP-01 validators fetch.
const acmeChallengePrefix = "/.well-known/acme-challenge/"

// RedirectHandler serves the plain-HTTP listener. Everything is redirected
// to HTTPS except the liveness check, which load balancers probe over
// plain HTTP, and ACME challenges, which must be reachable on port 80 for
// certificate issuance.
type RedirectHandler struct {
	health  *handlers.HealthHandler
	webroot string
}

// NewRedirectHandler creates the plain-HTTP handler. webroot is the
// directory holding ACME challenge tokens; empty disables challenge
// serving.
func NewRedirectHandler(webroot string) *RedirectHandler {
	return &RedirectHandler{
		health:  handlers.NewHealthHandler(),
		webroot: webroot,
	}
}

func (h *RedirectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		h.health.ServeHTTP(w, r)
		return
	}

	if h.webroot != "" && strings.HasPrefix(r.URL.Path, acmeChallengePrefix) {
		token := strings.TrimPrefix(r.URL.Path, acmeChallengePrefix)
		// filepath.Base defeats traversal; tokens are flat file names.
		if token == "" || token != filepath.Base(token) {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(h.webroot, token))
		return
	}

	host := r.Host
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		host = hostOnly
	}
	target := "https://" + host + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
