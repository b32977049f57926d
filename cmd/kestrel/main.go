// Kestrel is an edge gateway: a reverse proxy that classifies requests
// into route classes, enforces per-client token-bucket rate limits, serves
// a shared response cache with stale-while-revalidate, and balances
// traffic across health-checked upstream pools.
//
// Usage:
//
//	# Start the gateway with default configuration
//	kestrel run
//
//	# Start with a custom configuration file
//	kestrel run --config /etc/kestrel/config.yaml
//
//	# Validate a configuration file without starting
//	kestrel validate --config /etc/kestrel/config.yaml
//
//	# Show version information
//	kestrel version
package main

func main() {
	Execute()
}
