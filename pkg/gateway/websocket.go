package gateway

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"kestrel-hq/kestrel/pkg/config"
	"kestrel-hq/kestrel/pkg/routing"
)

// isUpgradeRequest reports whether the request asks for a protocol
// upgrade (websockets in practice).
func isUpgradeRequest(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, conn := range r.Header.Values("Connection") {
		for _, token := range strings.Split(conn, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}

// serveWebsocket tunnels an upgrade request: the connection is rate
// limited under the general class, bypasses the cache entirely, and once
// established becomes a raw bidirectional byte pipe with no per-message
// buffering. The tunnel ends when either side closes.
func (p *Pipeline) serveWebsocket(w http.ResponseWriter, r *http.Request, rule *routing.Rule, cfg *config.Config) {
	cc := cfg.Class(config.ClassGeneral)
	dec := p.limiter.Allow(rateKey(r, config.ClassGeneral), cc)
	if !dec.Allowed {
		if p.metrics != nil {
			p.metrics.RateLimit.RecordDenied(config.ClassGeneral)
		}
		writeRateLimited(w, dec.RetryAfter)
		return
	}

	pool, err := p.registry.Lookup(rule.Pool)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable",
			"No healthy upstream target is available.")
		return
	}
	target, err := pool.Pick(nil)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable",
			"No healthy upstream target is available.")
		return
	}
	defer target.Release()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error",
			"The connection does not support upgrades.")
		return
	}

	upConn, err := net.DialTimeout("tcp", target.Address, 10*time.Second)
	if err != nil {
		p.recordAttempt(pool.Name, FailureConnection.String())
		writeError(w, http.StatusBadGateway, "bad_gateway",
			"The upstream connection failed.")
		return
	}
	defer upConn.Close()
	p.recordAttempt(pool.Name, "ok")

	// The upgrade handshake headers must pass through intact, so the
	// request is written to the upstream verbatim, plus client identity.
	if clientIP := remoteIP(r); clientIP != "" {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			r.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			r.Header.Set("X-Forwarded-For", clientIP)
		}
	}
	if err := r.Write(upConn); err != nil {
		writeError(w, http.StatusBadGateway, "bad_gateway",
			"The upstream connection failed.")
		return
	}

	clientConn, clientRW, err := hijacker.Hijack()
	if err != nil {
		p.logger.Warn("websocket hijack failed", "error", err)
		return
	}
	defer clientConn.Close()

	p.logger.Debug("websocket tunnel established",
		"path", r.URL.Path,
		"target", target.Address)

	errc := make(chan error, 2)
	go func() {
		// clientRW.Reader may hold bytes read ahead of the hijack.
		_, err := io.Copy(upConn, clientRW.Reader)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(clientConn, upConn)
		errc <- err
	}()
	<-errc
}
