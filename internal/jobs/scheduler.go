package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"leadpulse/internal/config"
	"leadpulse/internal/metrics"
	"leadpulse/internal/notify"
)

// Connector hands out the database connection jobs write through.
type Connector interface {
	GetConnection() *gorm.DB
}

// Options wires the scheduler to the rest of the service.
type Options struct {
	// Dedup is swept of expired notification keys on every tick.
	Dedup *notify.Dedup
	// OnCleanup runs after the retention job removed at least one event.
	OnCleanup func()
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	conn      Connector
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config
	opts      Options
	cron      *cron.Cron

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	cleanupJob *CleanupJob
	geoLiteJob *GeoLiteUpdaterJob

	sweepTicker *time.Ticker
}

// NewScheduler validates the configured cron expressions and prepares the
// jobs. Nothing runs until Start.
func NewScheduler(conn Connector, cfg *config.Config, logger *slog.Logger, opts Options) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.CleanupSchedule, err)
	}
	if cfg.MaxMindLicenseKey != "" {
		if _, err := cron.ParseStandard(cfg.GeoLiteUpdateSchedule); err != nil {
			return nil, fmt.Errorf("invalid GeoLite update schedule %q: %w", cfg.GeoLiteUpdateSchedule, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		conn:      conn,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
		opts:      opts,
		cron:      cron.New(cron.WithLocation(time.UTC)),
	}

	s.cleanupJob = NewCleanupJob(conn, logger, cfg, opts.OnCleanup)
	if cfg.MaxMindLicenseKey != "" {
		s.geoLiteJob = NewGeoLiteUpdaterJob(logger, cfg)
	}

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	if _, err := s.cron.AddFunc(s.cfg.CleanupSchedule, func() {
		s.executeJobSafely("event_cleanup", s.cleanupJob.Run)
	}); err != nil {
		return fmt.Errorf("failed to schedule cleanup job: %w", err)
	}
	s.logger.Info("Scheduled event cleanup job", slog.String("schedule", s.cfg.CleanupSchedule))

	if s.geoLiteJob != nil {
		if _, err := s.cron.AddFunc(s.cfg.GeoLiteUpdateSchedule, func() {
			s.executeJobSafely("geolite_updater", s.geoLiteJob.Run)
		}); err != nil {
			return fmt.Errorf("failed to schedule GeoLite updater: %w", err)
		}
		s.logger.Info("Scheduled GeoLite updater job", slog.String("schedule", s.cfg.GeoLiteUpdateSchedule))
	}

	s.cron.Start()
	s.startDedupSweep()
	s.isRunning = true

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startDedupSweep() {
	if s.opts.Dedup == nil {
		return
	}

	interval := s.cfg.DedupeSweepInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.logger.Info("Starting notification dedup sweep", slog.Duration("interval", interval))
	s.sweepTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.sweepTicker.C:
				s.SweepDedup(time.Now())
			case <-s.ctx.Done():
				s.logger.Info("Notification dedup sweep stopped")
				return
			}
		}
	}()
}

// SweepDedup drops expired notification keys and returns how many went.
func (s *Scheduler) SweepDedup(now time.Time) int {
	if s.opts.Dedup == nil {
		return 0
	}
	removed := s.opts.Dedup.Sweep(now)
	metrics.SetDedupeEntries(s.opts.Dedup.Len())
	if removed > 0 {
		s.logger.Debug("Swept notification dedup cache",
			slog.Int("removed", removed),
			slog.Int("remaining", s.opts.Dedup.Len()))
	}
	return removed
}

// RunCleanup runs the retention job immediately, e.g. from the CLI.
func (s *Scheduler) RunCleanup() error {
	return s.cleanupJob.Run()
}

// Stop halts all background jobs and waits for a running cron job to end.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.sweepTicker != nil {
		s.sweepTicker.Stop()
	}

	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("Timed out waiting for running jobs to finish")
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
