// Package gateway implements the request pipeline coordinator: the
// http.Handler that carries every proxied request through classification,
// rate limiting, cache lookup, load-balanced upstream dispatch, and
// response post-processing.
//
// Per-request flow:
//
//	Classified -> RateChecked -> CacheChecked -> Dispatched -> (Succeeded | Retrying | Failed)
//
// The pipeline owns the per-request lifecycle exclusively; the structures
// it consults (route table, buckets, cache, pools) are shared, long-lived,
// and accessed through their own concurrency disciplines. Upstream
// failures are handled locally and translated to client-facing statuses
// (429/502/503/504); nothing propagates past the response.
package gateway
