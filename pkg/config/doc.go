// Package config defines the gateway configuration model and its loading
// pipeline: YAML parsing, default application, environment variable
// overrides, and validation.
//
// Configuration is loaded once at startup and treated as an immutable
// snapshot. Reloads (SIGHUP or file change) build a complete new snapshot
// which replaces the old one atomically via Store; a reload that fails
// validation leaves the previous snapshot serving traffic.
//
// Loading sequence:
//
//  1. Parse YAML from file
//  2. Apply default values
//  3. Apply KESTREL_* environment variable overrides
//  4. Validate the final configuration
//
// Example:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := config.NewStore(cfg)
//	current := store.Current()
package config
