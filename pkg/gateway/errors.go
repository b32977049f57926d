package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"kestrel-hq/kestrel/pkg/upstream"
)

// FailureClass categorizes terminal upstream failures for status mapping
// and metrics.
type FailureClass int

const (
	// FailureNone means the request succeeded.
	FailureNone FailureClass = iota

	// FailureNoTarget: no healthy target existed, no attempt was made.
	FailureNoTarget

	// FailureTimeout: the attempt budget was exhausted by timeouts.
	FailureTimeout

	// FailureConnection: the attempt budget was exhausted by connection
	// errors.
	FailureConnection

	// FailureCanceled: the client went away before a response completed.
	FailureCanceled
)

// String returns the failure class name used in metrics labels.
func (f FailureClass) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureNoTarget:
		return "no_target"
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection_error"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// DispatchError is a terminal upstream failure after the retry budget is
// spent (or when no attempt was possible).
type DispatchError struct {
	Class    FailureClass
	Pool     string
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("upstream dispatch failed (pool %s, %d attempts, %s): %v",
		e.Pool, e.Attempts, e.Class, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// StatusCode maps the failure class to the client-facing status:
// 503 when no target was available, 504 for timeouts, 502 for connection
// failures.
func (e *DispatchError) StatusCode() int {
	switch e.Class {
	case FailureNoTarget:
		return http.StatusServiceUnavailable
	case FailureTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// classifyTransportError buckets a RoundTrip error for retry decisions.
func classifyTransportError(err error) FailureClass {
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, upstream.ErrNoHealthyTarget) {
		return FailureNoTarget
	}
	return FailureConnection
}

// isDialError reports whether err happened while establishing the upstream
// connection, before any request bytes could have been sent. Such failures
// are safe to retry for every method, including non-idempotent ones.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
