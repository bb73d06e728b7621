package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Pruner removes audit entries recorded before a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cutoff returns the instant before which audit entries are expired.
func Cutoff(now time.Time, retentionDays int) time.Time {
	return now.UTC().AddDate(0, 0, -retentionDays)
}

// PruneAuditLog deletes audit entries older than retentionDays.
// The function is idempotent - safe to run repeatedly.
//
// Returns the number of rows deleted.
func PruneAuditLog(ctx context.Context, p Pruner, now time.Time, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be at least 1 (got: %d)", retentionDays)
	}
	deleted, err := p.Prune(ctx, Cutoff(now, retentionDays))
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return deleted, nil
}

// RunRetentionJob prunes the audit log and logs the result.
// This is the entry point called by the cron scheduler.
func RunRetentionJob(ctx context.Context, p Pruner, retentionDays int) error {
	log.Info().
		Int("audit_retention_days", retentionDays).
		Msg("Starting retention job")

	startTime := time.Now()

	deleted, err := PruneAuditLog(ctx, p, startTime, retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune audit log")
		return fmt.Errorf("audit log cleanup failed: %w", err)
	}

	log.Info().
		Int64("audit_entries_deleted", deleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return nil
}

// NewScheduler returns a UTC cron scheduler that runs the retention job on
// schedule. The caller starts and stops it.
func NewScheduler(schedule string, p Pruner, retentionDays int) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Retention job panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := RunRetentionJob(ctx, p, retentionDays); err != nil {
			log.Error().Err(err).Msg("Retention job failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule retention job: %w", err)
	}

	return c, nil
}
