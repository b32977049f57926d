package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kestrel-hq/kestrel/pkg/accesslog"
	"kestrel-hq/kestrel/pkg/config"
	"kestrel-hq/kestrel/pkg/gateway"
	"kestrel-hq/kestrel/pkg/gateway/handlers"
	"kestrel-hq/kestrel/pkg/maintenance"
	"kestrel-hq/kestrel/pkg/server"
	"kestrel-hq/kestrel/pkg/telemetry/logging"
	"kestrel-hq/kestrel/pkg/telemetry/metrics"
	"kestrel-hq/kestrel/pkg/telemetry/tracing"
	"kestrel-hq/kestrel/pkg/upstream"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Kestrel gateway",
	Long: `Start the gateway with the specified configuration.

The gateway listens on the configured addresses and proxies traffic through
route classification, rate limiting, the response cache, and load-balanced
upstream pools.

Examples:
  # Start with default config
  kestrel run

  # Start with custom config
  kestrel run --config /etc/kestrel/config.yaml

  # Override listen address
  kestrel run --listen 0.0.0.0:8443

  # Validate config without starting
  kestrel run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(cfg.Telemetry.Logging)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	startedAt := time.Now()
	store := config.NewStore(cfg)

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Telemetry.Metrics, nil)
	}

	// Tracing
	tracer, err := tracing.New(cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	// Access log
	var recorder *accesslog.Recorder
	if cfg.AccessLog.Enabled {
		var backend accesslog.Backend
		switch cfg.AccessLog.Backend {
		case "sqlite":
			backend, err = accesslog.NewSQLiteBackend(cfg.AccessLog.Path)
			if err != nil {
				return fmt.Errorf("failed to open access log: %w", err)
			}
		case "", "memory":
			backend = accesslog.NewMemoryBackend(0)
		default:
			return fmt.Errorf("unsupported access log backend: %s", cfg.AccessLog.Backend)
		}
		recorder = accesslog.NewRecorder(backend, cfg.AccessLog.Buffer, logger)
		defer recorder.Close()
		fmt.Printf("✓ Access log initialized (%s)\n", cfg.AccessLog.Backend)
	}

	// Pipeline
	opts := gateway.Options{
		Store:    store,
		Logger:   logger,
		Metrics:  collector,
		Recorder: recorder,
	}
	if tracer.Enabled() {
		opts.Tracer = tracer.Tracer()
	}
	pipeline := gateway.New(opts)
	fmt.Printf("✓ Pipeline initialized (%d routes, %d pools)\n", len(cfg.Routes), len(cfg.Pools))

	if collector != nil {
		collector.Cache.SetEntriesFunc(collector.Registry(), cfg.Telemetry.Metrics, func() float64 {
			return float64(pipeline.Cache().Len())
		})
		collector.RateLimit.RegisterBucketGauge(collector.Registry(), cfg.Telemetry.Metrics, func() float64 {
			return float64(pipeline.Limiter().Len())
		})
	}

	// Health prober
	prober := upstream.NewProber(pipeline.Registry(), cfg.HealthCheck)
	if collector != nil {
		prober.OnTransition(func(pool, address string, from, to upstream.State) {
			collector.Upstream.RecordStateChange(pool, to.String())
			updateHealthyGauges(collector, pipeline)
		})
		updateHealthyGauges(collector, pipeline)
	}
	prober.Start()
	defer prober.Stop()
	fmt.Printf("✓ Health prober started (interval %s)\n", cfg.HealthCheck.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Maintenance jobs
	sched := maintenance.NewScheduler(maintenance.Options{
		Config:        cfg.Maintenance,
		Limiter:       pipeline.Limiter(),
		BucketIdleTTL: cfg.Proxy.BucketIdleTTL,
		Cache:         pipeline.Cache(),
		Recorder:      recorder,
		Retention:     cfg.AccessLog.Retention,
		Logger:        logger,
	})
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start maintenance scheduler: %w", err)
	}
	defer sched.Stop()

	// Hot reload: a successful reload swaps the snapshot and the pipeline
	// rebuilds its table and pools; a failed reload keeps the old one.
	store.OnSwap(pipeline.ApplySnapshot)
	watcher, err := config.NewWatcher(store, cfgFile)
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		watcher.Start()
		defer watcher.Close()
	}

	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	defer signal.Stop(hupChan)
	go func() {
		for range hupChan {
			if err := store.Reload(cfgFile); err != nil {
				logger.Error("SIGHUP reload failed, keeping previous configuration", "error", err)
			}
		}
	}()

	// Admin surface
	var adminMux http.Handler
	if cfg.Admin.Enabled {
		adminMux = buildAdminMux(store, pipeline, collector, recorder, sched, startedAt)
	}

	srv := server.NewServer(store, pipeline, adminMux, logger)

	fmt.Printf("✓ Gateway listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Admin.Enabled {
		fmt.Printf("✓ Admin endpoints on %s\n", cfg.Admin.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

// buildAdminMux assembles the admin listener routes.
func buildAdminMux(store *config.Store, pipeline *gateway.Pipeline, collector *metrics.Collector, recorder *accesslog.Recorder, sched *maintenance.Scheduler, startedAt time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler())
	mux.Handle("/ready", handlers.NewReadyHandler(pipeline.Registry()))

	status := &handlers.StatusHandler{
		Registry:  pipeline.Registry(),
		StartedAt: startedAt,
		Version:   Version,
		Reloads:   store.Reloads,
		CacheEntries: func() int {
			return pipeline.Cache().Len()
		},
		RateBuckets: func() int {
			return pipeline.Limiter().Len()
		},
	}
	if recorder != nil {
		status.DroppedRecords = recorder.Dropped
	}
	mux.Handle("/status", status)
	mux.Handle("/config", &handlers.ConfigHandler{Store: store})

	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}
	return mux
}

// updateHealthyGauges refreshes the per-pool healthy target gauges.
func updateHealthyGauges(collector *metrics.Collector, pipeline *gateway.Pipeline) {
	for _, pool := range pipeline.Registry().Pools() {
		healthy := 0
		for _, target := range pool.Targets {
			if target.State() != upstream.Dead {
				healthy++
			}
		}
		collector.Upstream.SetHealthyTargets(pool.Name, healthy)
	}
}
