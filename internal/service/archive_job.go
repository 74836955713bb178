package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const defaultArchiveInterval = 24 * time.Hour

// ArchiveJob periodically moves aged trade history out of the database into
// cold storage. Failures are logged and retried on the next run; they never
// stop the bot.
type ArchiveJob struct {
	archiver      domain.Archiver
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

func NewArchiveJob(archiver domain.Archiver, retentionDays int, interval time.Duration, logger *slog.Logger) *ArchiveJob {
	if interval <= 0 {
		interval = defaultArchiveInterval
	}
	return &ArchiveJob{
		archiver:      archiver,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With(slog.String("component", "archive_job")),
	}
}

// Run archives on the configured interval until ctx is cancelled.
func (j *ArchiveJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := j.archiver.ArchiveOldData(ctx, j.retentionDays); err != nil {
				j.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
