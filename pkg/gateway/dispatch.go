package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"kestrel-hq/kestrel/pkg/config"
	"kestrel-hq/kestrel/pkg/routing"
	"kestrel-hq/kestrel/pkg/upstream"
)

// maxDrainBytes bounds how much of a discarded retry response body is read
// before closing, to keep the connection reusable without unbounded reads.
const maxDrainBytes = 64 << 10

// idempotentMethods per RFC 9110 §9.2.2. Non-idempotent methods are retried
// only on dial failures, where no request bytes reached the upstream.
var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
}

// dispatchResult is a successful upstream exchange. The response body is
// wrapped so that closing it releases the target's connection slot and the
// attempt context.
type dispatchResult struct {
	Response *http.Response
	Target   string
	Attempts int
}

// dispatch runs the attempt loop against the rule's pool: pick a target by
// weighted least-connections, bound the attempt by the class attempt
// timeout and the remaining request deadline, and retry transient failures
// on a different target until the budget is spent.
func (p *Pipeline) dispatch(r *http.Request, rule *routing.Rule, cc config.ClassConfig) (*dispatchResult, *DispatchError) {
	pool, err := p.registry.Lookup(rule.Pool)
	if err != nil {
		return nil, &DispatchError{Class: FailureNoTarget, Pool: rule.Pool, Err: err}
	}

	getBody, err := bufferBody(r)
	if err != nil {
		return nil, &DispatchError{Class: FailureConnection, Pool: rule.Pool, Err: err}
	}

	maxAttempts := p.store.Current().Proxy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	ctx := r.Context()
	deadline, hasDeadline := ctx.Deadline()
	idempotent := idempotentMethods[r.Method]
	tried := make(map[*upstream.Target]bool)

	var lastClass FailureClass
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if hasDeadline && time.Until(deadline) <= 0 {
			return nil, &DispatchError{Class: FailureTimeout, Pool: pool.Name, Attempts: attempt - 1, Err: context.DeadlineExceeded}
		}

		target, pickErr := pool.Pick(tried)
		if pickErr != nil {
			return nil, &DispatchError{Class: FailureNoTarget, Pool: pool.Name, Attempts: attempt - 1, Err: pickErr}
		}
		tried[target] = true

		attemptCtx, cancel := attemptContext(ctx, cc, deadline, hasDeadline)
		out := p.outboundRequest(attemptCtx, r, target, getBody)

		resp, rtErr := p.transport.RoundTrip(out)
		if rtErr != nil {
			target.Release()
			cancel()

			class := classifyTransportError(rtErr)
			if class == FailureCanceled {
				return nil, &DispatchError{Class: class, Pool: pool.Name, Attempts: attempt, Err: rtErr}
			}
			p.recordAttempt(pool.Name, class.String())

			lastClass, lastErr = class, rtErr
			if attempt < maxAttempts && (isDialError(rtErr) || idempotent) {
				continue
			}
			return nil, &DispatchError{Class: class, Pool: pool.Name, Attempts: attempt, Err: lastErr}
		}

		// A 5xx from one target may be target-local; retry it elsewhere
		// when the method allows. The final attempt's response is
		// forwarded as-is.
		if resp.StatusCode >= 500 && idempotent && attempt < maxAttempts {
			p.recordAttempt(pool.Name, "upstream_5xx")
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
			resp.Body.Close()
			target.Release()
			cancel()
			continue
		}

		p.recordAttempt(pool.Name, "ok")
		resp.Body = &releasingBody{
			ReadCloser: resp.Body,
			release: func() {
				target.Release()
				cancel()
			},
		}
		return &dispatchResult{Response: resp, Target: target.Address, Attempts: attempt}, nil
	}

	return nil, &DispatchError{Class: lastClass, Pool: pool.Name, Attempts: maxAttempts, Err: lastErr}
}

// attemptContext bounds one attempt by the class attempt timeout, clamped
// to the remaining request deadline.
func attemptContext(ctx context.Context, cc config.ClassConfig, deadline time.Time, hasDeadline bool) (context.Context, context.CancelFunc) {
	timeout := cc.AttemptTimeout
	if hasDeadline {
		if remaining := time.Until(deadline); timeout <= 0 || timeout > remaining {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// bufferBody reads the inbound body once so that every retry can replay it.
// The body-size middleware has already bounded the read.
func bufferBody(r *http.Request) (func() io.ReadCloser, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return func() io.ReadCloser { return http.NoBody }, nil
	}
	buf, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() io.ReadCloser {
		return io.NopCloser(bytes.NewReader(buf))
	}, nil
}

// outboundRequest builds the per-attempt upstream request: a shallow clone
// rewritten to the target address with hop-by-hop headers stripped and
// forwarding headers appended.
func (p *Pipeline) outboundRequest(ctx context.Context, r *http.Request, target *upstream.Target, getBody func() io.ReadCloser) *http.Request {
	out := r.Clone(ctx)
	out.URL.Scheme = "http"
	out.URL.Host = target.Address
	out.Host = r.Host
	out.RequestURI = ""
	out.Body = getBody()
	out.GetBody = func() (io.ReadCloser, error) { return getBody(), nil }

	removeHopByHop(out.Header)

	if clientIP := remoteIP(r); clientIP != "" {
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			out.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			out.Header.Set("X-Forwarded-For", clientIP)
		}
	}
	if out.Header.Get("X-Forwarded-Proto") == "" {
		proto := "http"
		if r.TLS != nil {
			proto = "https"
		}
		out.Header.Set("X-Forwarded-Proto", proto)
	}
	if out.Header.Get("X-Forwarded-Host") == "" {
		out.Header.Set("X-Forwarded-Host", r.Host)
	}
	return out
}

// remoteIP strips the port from RemoteAddr.
func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return strings.Trim(addr[:i], "[]")
	}
	return addr
}

// releasingBody frees the target's connection slot and the attempt context
// exactly once, whether the body is fully read or abandoned.
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
