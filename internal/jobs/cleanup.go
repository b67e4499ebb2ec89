package jobs

import (
	"log/slog"
	"time"

	"leadpulse/internal/config"
	"leadpulse/internal/events"
)

const cleanupBatchSize = 1000

// CleanupJob removes events older than the retention period. Sessions and
// conversion paths are kept.
type CleanupJob struct {
	conn      Connector
	logger    *slog.Logger
	cfg       *config.Config
	onCleanup func()
	now       func() time.Time
	pause     time.Duration
}

func NewCleanupJob(conn Connector, logger *slog.Logger, cfg *config.Config, onCleanup func()) *CleanupJob {
	return &CleanupJob{
		conn:      conn,
		logger:    logger,
		cfg:       cfg,
		onCleanup: onCleanup,
		now:       time.Now,
		pause:     100 * time.Millisecond,
	}
}

// Run deletes expired events in batches to avoid holding the write lock.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.EventRetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Event retention disabled, skipping cleanup")
		return nil
	}

	db := j.conn.GetConnection()
	cutoffDate := j.now().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old events",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	totalDeleted := int64(0)
	for {
		deleted, err := events.DeleteOlderThan(db, cutoffDate, cleanupBatchSize)
		if err != nil {
			j.logger.Error("Failed to delete old events",
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			return err
		}

		totalDeleted += deleted

		if deleted < cleanupBatchSize {
			break
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(j.pause)
	}

	if totalDeleted == 0 {
		j.logger.Debug("No old events to clean up")
		return nil
	}

	j.logger.Info("Cleaned up old events",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", retentionDays))

	if j.onCleanup != nil {
		j.onCleanup()
	}
	return nil
}
