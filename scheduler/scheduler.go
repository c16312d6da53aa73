// Package scheduler runs the periodic jobs of the substitute engine: the daily
// cache rollover that drops substitute lists computed against yesterday's
// batch expiries, and the dependency health watch.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/DikshantJangra/hoperxpharma-sub002/health"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	DefaultRolloverAt     = "00:05"
	DefaultHealthInterval = time.Hour
	jobTimeout            = 30 * time.Second
)

// Options tune the job timings. Zero values fall back to the defaults.
type Options struct {
	RolloverAt     string
	HealthInterval time.Duration
	Location       *time.Location
}

// Scheduler owns the gocron scheduler and the jobs registered on it.
type Scheduler struct {
	finder    interfaces.SubstituteFinder
	health    interfaces.HealthChecker
	opts      Options
	scheduler *gocron.Scheduler

	rolling      atomic.Bool
	lastRollover atomic.Int64
}

// NewScheduler creates a scheduler; health may be nil to skip the health watch.
func NewScheduler(finder interfaces.SubstituteFinder, healthChecker interfaces.HealthChecker, opts Options) *Scheduler {
	if opts.RolloverAt == "" {
		opts.RolloverAt = DefaultRolloverAt
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{
		finder:    finder,
		health:    healthChecker,
		opts:      opts,
		scheduler: gocron.NewScheduler(opts.Location),
	}
}

// Start registers the jobs and starts the scheduler in the background.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Days().At(s.opts.RolloverAt).Do(func() {
		if err := s.Rollover(context.Background()); err != nil {
			logging.Error("Cache rollover failed", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule cache rollover", "error", err)
		return fmt.Errorf("failed to schedule cache rollover: %w", err)
	}

	if s.health != nil {
		_, err = s.scheduler.Every(s.opts.HealthInterval).WaitForSchedule().Do(func() {
			s.WatchHealth(context.Background())
		})
		if err != nil {
			logging.Error("Failed to schedule health watch", "error", err)
			return fmt.Errorf("failed to schedule health watch: %w", err)
		}
	}

	s.scheduler.StartAsync()
	logging.Info("Scheduler started",
		"rollover_at", s.opts.RolloverAt,
		"health_interval", s.opts.HealthInterval.String(),
		"jobs", len(s.scheduler.Jobs()),
	)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Rollover drops every cached substitute list. Overlapping runs are skipped.
func (s *Scheduler) Rollover(ctx context.Context) error {
	if !s.rolling.CompareAndSwap(false, true) {
		logging.Info("Cache rollover already in progress, skipping...")
		return nil
	}
	defer s.rolling.Store(false)

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	removed, err := s.finder.InvalidateAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to invalidate substitute cache: %w", err)
	}
	s.lastRollover.Store(time.Now().UnixNano())

	logging.Info("Cache rollover completed", "removed_keys", removed, "duration", time.Since(start).String())
	return nil
}

// LastRollover returns when the last successful rollover finished, or the zero time.
func (s *Scheduler) LastRollover() time.Time {
	ns := s.lastRollover.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// WatchHealth checks the dependencies and logs anything short of healthy.
func (s *Scheduler) WatchHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	status, details, err := s.health.HealthCheck(ctx)
	switch status {
	case health.StatusHealthy:
	case health.StatusDegraded:
		logging.Warn("Dependencies degraded", "details", details, "error", err)
	default:
		logging.Error("Dependencies unhealthy", "status", status, "details", details, "error", err)
	}

	if last := s.LastRollover(); !last.IsZero() && time.Since(last) > 25*time.Hour {
		logging.Warn("Substitute cache hasn't been rolled over in over 25 hours", "last_rollover", last)
	}
}
