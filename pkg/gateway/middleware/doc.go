// Package middleware provides the HTTP middleware chain wrapped around the
// gateway pipeline: request ID assignment, request logging, panic
// recovery, and inbound body size enforcement.
//
// The chain is assembled outermost first:
//
//	handler = MaxBodyMiddleware(limit)(handler)
//	handler = LoggingMiddleware(handler)
//	handler = RequestIDMiddleware(handler)
//	handler = RecoveryMiddleware(handler)
package middleware
