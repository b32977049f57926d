package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kestrel-hq/kestrel/pkg/accesslog"
	"kestrel-hq/kestrel/pkg/cache"
	"kestrel-hq/kestrel/pkg/config"
	"kestrel-hq/kestrel/pkg/ratelimit"
)

// Scheduler runs the gateway's housekeeping jobs on cron schedules. Any
// job whose schedule is empty is skipped; any job whose component is nil
// is skipped.
type Scheduler struct {
	cfg      config.MaintenanceConfig
	limiter  *ratelimit.Keyed
	cache    *cache.Store
	recorder *accesslog.Recorder

	bucketIdleTTL time.Duration
	retention     time.Duration

	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
}

// Options configures a Scheduler.
type Options struct {
	Config config.MaintenanceConfig

	Limiter       *ratelimit.Keyed
	BucketIdleTTL time.Duration

	Cache *cache.Store

	Recorder  *accesslog.Recorder
	Retention time.Duration

	Logger *slog.Logger
}

// NewScheduler creates a maintenance scheduler.
func NewScheduler(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:           opts.Config,
		limiter:       opts.Limiter,
		cache:         opts.Cache,
		recorder:      opts.Recorder,
		bucketIdleTTL: opts.BucketIdleTTL,
		retention:     opts.Retention,
		cron:          cron.New(),
		logger:        logger.With("component", "maintenance"),
	}
}

// Start registers the configured jobs and begins the schedule. The
// scheduler stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.addJob(s.cfg.BucketReapSchedule, "bucket_reap", s.limiter != nil, s.reapBuckets); err != nil {
		return err
	}
	if err := s.addJob(s.cfg.CacheSweepSchedule, "cache_sweep", s.cache != nil, s.sweepCache); err != nil {
		return err
	}
	if err := s.addJob(s.cfg.AccessLogPruneSchedule, "access_log_prune", s.recorder != nil, func() { s.pruneAccessLog(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("maintenance scheduler started",
		"bucket_reap", s.cfg.BucketReapSchedule,
		"cache_sweep", s.cfg.CacheSweepSchedule,
		"access_log_prune", s.cfg.AccessLogPruneSchedule,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) addJob(schedule, name string, enabled bool, job func()) error {
	if schedule == "" || !enabled {
		s.logger.Debug("maintenance job not configured", "job", name)
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, job); err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", name, schedule, err)
	}
	return nil
}

func (s *Scheduler) reapBuckets() {
	ttl := s.bucketIdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if reaped := s.limiter.ReapIdle(ttl); reaped > 0 {
		s.logger.Info("reaped idle rate buckets", "reaped", reaped, "remaining", s.limiter.Len())
	}
}

func (s *Scheduler) sweepCache() {
	if evicted := s.cache.Sweep(); evicted > 0 {
		s.logger.Info("swept expired cache entries", "evicted", evicted, "remaining", s.cache.Len())
	}
}

func (s *Scheduler) pruneAccessLog(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	pruned, err := s.recorder.Prune(pruneCtx, s.retention)
	if err != nil {
		s.logger.Error("access log prune failed", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Info("pruned access log records", "pruned", pruned)
	}
}

// Stop halts the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("maintenance scheduler stopped")
}

// IsRunning reports whether the schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRuns returns the next fire time of each registered job, soonest
// first. Used by the admin status surface.
func (s *Scheduler) NextRuns() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}
