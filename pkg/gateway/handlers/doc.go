// Package handlers provides the gateway's locally served endpoints:
// liveness and readiness checks plus the admin status and config views.
// They are answered by the gateway itself and never touch an upstream.
package handlers
