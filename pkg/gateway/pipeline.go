package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kestrel-hq/kestrel/pkg/accesslog"
	"kestrel-hq/kestrel/pkg/cache"
	"kestrel-hq/kestrel/pkg/config"
	"kestrel-hq/kestrel/pkg/gateway/middleware"
	"kestrel-hq/kestrel/pkg/ratelimit"
	"kestrel-hq/kestrel/pkg/routing"
	"kestrel-hq/kestrel/pkg/telemetry/metrics"
	"kestrel-hq/kestrel/pkg/upstream"
)

// Pipeline is the request coordinator. It owns the per-request lifecycle
// and consults the shared route table, rate buckets, response cache, and
// upstream pools. A Pipeline is safe for concurrent use; configuration
// swaps replace the table and pools atomically between requests.
type Pipeline struct {
	store    *config.Store
	logger   *slog.Logger
	metrics  *metrics.Collector
	recorder *accesslog.Recorder
	tracer   trace.Tracer

	limiter   *ratelimit.Keyed
	cache     *cache.Store
	registry  *upstream.Registry
	transport http.RoundTripper
	table     atomic.Pointer[routing.Table]
}

// Options configures a Pipeline. Store and Logger are required; the rest
// are optional.
type Options struct {
	Store    *config.Store
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Recorder *accesslog.Recorder
	Tracer   trace.Tracer

	// Transport overrides the upstream transport. Nil builds a default
	// from the proxy configuration.
	Transport http.RoundTripper
}

// New builds a Pipeline from the current configuration snapshot.
func New(opts Options) *Pipeline {
	cfg := opts.Store.Current()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pipeline{
		store:    opts.Store,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		recorder: opts.Recorder,
		tracer:   opts.Tracer,
		limiter:  ratelimit.NewKeyed(cfg.Proxy.RateLimitShards),
		registry: upstream.NewRegistry(cfg),
	}

	p.cache = cache.New(cache.Options{
		Shards:      cfg.Cache.Shards,
		StaleWindow: cfg.Cache.StaleWhileRevalidate,
		MaxEntries:  cfg.Cache.MaxEntries,
	})
	if opts.Metrics != nil {
		p.cache.SetObservers(
			opts.Metrics.Cache.RecordHit,
			opts.Metrics.Cache.RecordMiss,
			opts.Metrics.Cache.RecordEvictions,
		)
	}

	p.transport = opts.Transport
	if p.transport == nil {
		p.transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost:   cfg.Proxy.MaxIdleConnsPerHost,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}

	p.table.Store(routing.NewTable(cfg.Routes, cfg.DefaultPool))
	return p
}

// ApplySnapshot installs a new configuration: the route table and pool
// registry are rebuilt, rate buckets are cleared so changed class
// parameters take effect immediately, and the cache is purged since route
// TTLs and vary rules may have changed. In-flight requests finish against
// the structures they already hold.
func (p *Pipeline) ApplySnapshot(cfg *config.Config) {
	p.table.Store(routing.NewTable(cfg.Routes, cfg.DefaultPool))
	p.registry.Rebuild(cfg)
	p.limiter.Clear()
	p.cache.Purge()
	p.logger.Info("configuration snapshot applied",
		"routes", len(cfg.Routes),
		"pools", len(cfg.Pools))
}

// Registry exposes the pool registry for the health prober and the admin
// status surface.
func (p *Pipeline) Registry() *upstream.Registry { return p.registry }

// Limiter exposes the keyed bucket map for the maintenance reaper.
func (p *Pipeline) Limiter() *ratelimit.Keyed { return p.limiter }

// Cache exposes the response cache for the maintenance sweeper.
func (p *Pipeline) Cache() *cache.Store { return p.cache }

// outcome accumulates per-request facts for metrics, tracing, and the
// access log.
type outcome struct {
	class       string
	pool        string
	target      string
	status      int
	cacheStatus string
	attempts    int
	bytesOut    int64
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cfg := p.store.Current()
	rule := p.table.Load().Classify(r.URL.Path)

	if isUpgradeRequest(r) {
		p.serveWebsocket(w, r, rule, cfg)
		return
	}

	if p.tracer != nil {
		ctx, span := p.tracer.Start(r.Context(), "gateway.request")
		defer span.End()
		r = r.WithContext(ctx)
	}

	cc := cfg.Class(rule.Class)
	out := &outcome{class: rule.Class, pool: rule.Pool}
	defer p.finish(r, out, start)

	dec := p.limiter.Allow(rateKey(r, rule.Class), cc)
	if !dec.Allowed {
		if p.metrics != nil {
			p.metrics.RateLimit.RecordDenied(rule.Class)
		}
		writeRateLimited(w, dec.RetryAfter)
		out.status = http.StatusTooManyRequests
		return
	}

	if cc.Deadline > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), cc.Deadline)
		defer cancel()
		r = r.WithContext(ctx)
	}

	if cfg.Cache.Enabled && rule.Cacheable && r.Method == http.MethodGet {
		p.serveCached(w, r, rule, cc, cfg, out)
		return
	}
	p.serveProxied(w, r, rule, cc, cfg.Cache.Enabled, out)
}

// serveProxied dispatches to the upstream pool and streams the response
// back.
func (p *Pipeline) serveProxied(w http.ResponseWriter, r *http.Request, rule *routing.Rule, cc config.ClassConfig, cacheEnabled bool, out *outcome) {
	res, derr := p.dispatch(r, rule, cc)
	if derr != nil {
		p.failDispatch(w, derr, out)
		return
	}
	defer res.Response.Body.Close()

	out.target = res.Target
	out.attempts = res.Attempts
	out.status = res.Response.StatusCode

	copyHeader(w.Header(), res.Response.Header)
	if cacheEnabled {
		w.Header().Set(CacheStatusHeader, cache.StatusBypass)
		out.cacheStatus = cache.StatusBypass
	}
	w.WriteHeader(res.Response.StatusCode)
	n, _ := io.Copy(w, res.Response.Body)
	out.bytesOut = n
}

// serveCached consults the response cache: a fresh hit short-circuits, a
// stale hit is served immediately with one background refresh, and a miss
// fetches through the single-flight group so concurrent misses of the same
// key produce exactly one upstream call.
func (p *Pipeline) serveCached(w http.ResponseWriter, r *http.Request, rule *routing.Rule, cc config.ClassConfig, cfg *config.Config, out *outcome) {
	key := cache.Key(r, cfg.Cache.VaryHeaders)

	if lk, ok := p.cache.Get(key); ok {
		if lk.Stale {
			out.cacheStatus = cache.StatusStale
			out.status = lk.Entry.StatusCode
			out.bytesOut = int64(len(lk.Entry.Payload))
			writeEntry(w, lk.Entry, cache.StatusStale)
			p.cache.TryBeginRefresh(key, p.fetchEntry(r, rule, cc, cfg, key, &outcome{}))
			return
		}
		out.cacheStatus = cache.StatusHit
		out.status = lk.Entry.StatusCode
		out.bytesOut = int64(len(lk.Entry.Payload))
		writeEntry(w, lk.Entry, cache.StatusHit)
		return
	}

	entry, err := p.cache.Fetch(key, p.fetchEntry(r, rule, cc, cfg, key, out))
	if err != nil {
		var derr *DispatchError
		if !errors.As(err, &derr) {
			derr = &DispatchError{Class: FailureConnection, Pool: rule.Pool, Err: err}
		}
		p.failDispatch(w, derr, out)
		return
	}
	out.cacheStatus = cache.StatusMiss
	out.status = entry.StatusCode
	out.bytesOut = int64(len(entry.Payload))
	writeEntry(w, entry, cache.StatusMiss)
}

// fetchEntry returns the upstream fetch used for cache fills. It runs
// detached from the initiating request's cancellation so that one departed
// waiter cannot abort a fetch other waiters depend on; only the class
// deadline bounds it. Only 200 responses within the object size limit are
// stored; anything else is served to the current waiters without storing.
func (p *Pipeline) fetchEntry(r *http.Request, rule *routing.Rule, cc config.ClassConfig, cfg *config.Config, key string, out *outcome) func() (*cache.Entry, error) {
	detached := r.Clone(context.WithoutCancel(r.Context()))
	return func() (*cache.Entry, error) {
		ctx := detached.Context()
		if cc.Deadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cc.Deadline)
			defer cancel()
		}

		res, derr := p.dispatch(detached.WithContext(ctx), rule, cc)
		if derr != nil {
			out.attempts = derr.Attempts
			return nil, derr
		}
		defer res.Response.Body.Close()
		out.target = res.Target
		out.attempts = res.Attempts

		body, err := io.ReadAll(res.Response.Body)
		if err != nil {
			return nil, &DispatchError{Class: classifyTransportError(err), Pool: rule.Pool, Attempts: res.Attempts, Err: err}
		}

		header := res.Response.Header.Clone()
		removeHopByHop(header)

		ttl := rule.CacheTTL
		if ttl <= 0 {
			ttl = cfg.Cache.DefaultTTL
		}

		storable := res.Response.StatusCode == http.StatusOK &&
			(cfg.Cache.MaxObjectBytes <= 0 || int64(len(body)) <= cfg.Cache.MaxObjectBytes)
		if storable {
			p.cache.Put(key, res.Response.StatusCode, header, body, ttl)
		}

		now := time.Now()
		return &cache.Entry{
			StatusCode: res.Response.StatusCode,
			Header:     header,
			Payload:    body,
			CreatedAt:  now,
			FreshUntil: now.Add(ttl),
			StaleUntil: now.Add(ttl + cfg.Cache.StaleWhileRevalidate),
		}, nil
	}
}

// failDispatch translates a terminal dispatch error into the client-facing
// response. A canceled request gets no response body; the client is gone.
func (p *Pipeline) failDispatch(w http.ResponseWriter, derr *DispatchError, out *outcome) {
	out.attempts = derr.Attempts
	if derr.Class == FailureCanceled {
		out.status = 499 // client closed request, log only
		return
	}
	out.status = derr.StatusCode()
	p.logger.Warn("upstream dispatch failed",
		"pool", derr.Pool,
		"attempts", derr.Attempts,
		"failure", derr.Class.String(),
		"error", derr.Err)
	writeDispatchFailure(w, derr)
}

// finish records the request in metrics, the active span, the access log,
// and the debug log.
func (p *Pipeline) finish(r *http.Request, out *outcome, start time.Time) {
	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.Requests.Record(out.class, out.pool, strconv.Itoa(out.status), duration, out.attempts)
	}

	if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
		span.SetAttributes(
			attribute.String("route.class", out.class),
			attribute.String("upstream.pool", out.pool),
			attribute.Int("http.status_code", out.status),
			attribute.String("cache.status", out.cacheStatus),
			attribute.Int("upstream.attempts", out.attempts),
		)
	}

	if p.recorder != nil {
		p.recorder.Record(accesslog.Record{
			ID:          middleware.GetRequestID(r.Context()),
			Time:        start,
			Method:      r.Method,
			Path:        r.URL.Path,
			ClientIP:    remoteIP(r),
			Class:       out.class,
			Pool:        out.pool,
			Target:      out.target,
			Status:      out.status,
			CacheStatus: out.cacheStatus,
			Attempts:    out.attempts,
			Duration:    duration,
			BytesOut:    out.bytesOut,
		})
	}

	p.logger.Debug("request completed",
		"method", r.Method,
		"path", r.URL.Path,
		"class", out.class,
		"status", out.status,
		"cache", out.cacheStatus,
		"attempts", out.attempts,
		"duration_ms", duration.Milliseconds())
}

func (p *Pipeline) recordAttempt(pool, outcome string) {
	if p.metrics != nil {
		p.metrics.Upstream.RecordAttempt(pool, outcome)
	}
}

// rateKey combines the client identity with the route class so that each
// client holds an independent bucket per class.
func rateKey(r *http.Request, class string) string {
	return remoteIP(r) + "|" + class
}
