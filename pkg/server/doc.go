// Package server runs the gateway's listeners: the main proxy listener
// (HTTPS when TLS is configured), the plain-HTTP listener serving the
// HTTPS redirect, liveness checks, and ACME challenges, and the optional
// admin listener with metrics and status endpoints. Shutdown drains all
// three gracefully within the configured timeout.
package server
