package worker

import (
	"context"
	"time"

	"github.com/medtrack/server/internal/blob"
	"github.com/medtrack/server/internal/repository"
	"github.com/medtrack/server/pkg/logger"
	"github.com/medtrack/server/pkg/metrics"
)

type BlobCleanupConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

// BlobCleanup retires orphaned blobs, locators whose metadata insert failed
// after the blob was already written. Entries that keep failing past
// MaxAttempts are left in place for operator inspection instead of being
// silently dropped.
type BlobCleanup struct {
	repo    repository.DocumentRepository
	blobs   blob.Store
	config  BlobCleanupConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewBlobCleanup(repo repository.DocumentRepository, blobs blob.Store, config BlobCleanupConfig, log *logger.Logger, m *metrics.Metrics) *BlobCleanup {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	return &BlobCleanup{
		repo:    repo,
		blobs:   blobs,
		config:  config,
		logger:  log,
		metrics: m,
	}
}

func (c *BlobCleanup) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	c.logger.Info("starting blob cleanup worker")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("shutting down blob cleanup worker")
			return
		case <-ticker.C:
			if err := c.sweep(ctx); err != nil {
				c.logger.Error(err, "blob cleanup sweep failed")
			}
		}
	}
}

func (c *BlobCleanup) sweep(ctx context.Context) error {
	entries, err := c.repo.PendingCleanup(ctx, c.config.BatchSize)
	if err != nil {
		return err
	}
	c.metrics.CleanupQueueSize.Set(float64(len(entries)))

	for _, entry := range entries {
		if entry.Attempts >= c.config.MaxAttempts {
			c.logger.Warn("cleanup entry exceeded max attempts, skipping",
				"locator", entry.Locator,
				"attempts", entry.Attempts)
			continue
		}
		if err := c.blobs.Remove(ctx, entry.Locator); err != nil {
			c.logger.Error(err, "failed to remove orphaned blob", "locator", entry.Locator)
			if recErr := c.repo.RecordAttempt(ctx, entry.ID); recErr != nil {
				c.logger.Error(recErr, "failed to record cleanup attempt", "locator", entry.Locator)
			}
			continue
		}
		c.metrics.OrphanedBlobs.Inc()
		if err := c.repo.MarkRemoved(ctx, entry.ID); err != nil {
			c.logger.Error(err, "failed to mark cleanup entry removed", "locator", entry.Locator)
		}
	}
	return nil
}
