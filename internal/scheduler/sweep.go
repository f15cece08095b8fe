// Package scheduler implements the scheduled quota maintenance jobs: the
// stale-ledger sweep that rolls elapsed usage periods over, and the archival
// of pre-rollover snapshots.
//
// The sweep is a safety net. Request traffic already heals stale ledgers
// lazily on first touch; the sweep catches users who go idle across a period
// boundary so their notifications clear and their snapshots are archived on
// time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jobtrail/internal/types"
)

// DefaultBatchLimit bounds the ledgers processed per batch to keep a single
// worker invocation within its deadline during large backlogs.
const DefaultBatchLimit = 50

// SweepStore is the ledger access the sweep needs. Implemented by
// ledger.Store; rollover uses the same conditional update as request
// traffic, so the two can race safely.
type SweepStore interface {
	ListStale(ctx context.Context, now time.Time, limit int) ([]types.UsageLedger, error)
	Rollover(ctx context.Context, userID string, now, nextReset time.Time) (*types.UsageLedger, bool, error)
}

// ResetScheduler decides each user's next reset date. Implemented by
// quota.ResetPolicy.
type ResetScheduler interface {
	NextReset(ctx context.Context, userID string, now time.Time) time.Time
}

// ArchiveSink receives pre-rollover ledger snapshots. Implemented by
// SnapshotArchiver; nil disables archival.
type ArchiveSink interface {
	Append(led *types.UsageLedger, rolledAt time.Time) error
}

// Sweeper rolls over stale usage ledgers in batches.
type Sweeper struct {
	store     SweepStore
	reset     ResetScheduler
	archive   ArchiveSink
	batchSize int
	logger    *slog.Logger
}

// NewSweeper creates a sweeper. archive may be nil; batchSize falls back to
// DefaultBatchLimit when not positive.
func NewSweeper(store SweepStore, reset ResetScheduler, archive ArchiveSink, batchSize int, logger *slog.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = DefaultBatchLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     store,
		reset:     reset,
		archive:   archive,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sweep processes every ledger whose period elapsed before now and returns
// the number rolled over. One failing ledger never blocks the rest: it is
// logged, left stale, and retried on the next run.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	total := 0

	for {
		batch, err := s.store.ListStale(ctx, now, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("listing stale ledgers: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		s.logger.InfoContext(ctx, "processing stale ledger batch",
			"batch_size", len(batch),
			"total_so_far", total,
		)

		processed := 0
		for i := range batch {
			userID := batch[i].UserID
			if err := s.sweepOne(ctx, userID, now); err != nil {
				s.logger.ErrorContext(ctx, "failed to roll over ledger",
					"user_id", userID,
					"error", err,
				)
				continue
			}
			processed++
		}
		total += processed

		// A batch where nothing moved would repeat forever; leave the
		// remainder for the next run.
		if processed == 0 {
			break
		}
	}

	s.logger.InfoContext(ctx, "ledger sweep complete", "total_rolled_over", total)
	return total, nil
}

// sweepOne rolls a single ledger over and archives its prior state. The
// conditional rollover means a ledger healed by request traffic between the
// listing and this call is simply skipped.
func (s *Sweeper) sweepOne(ctx context.Context, userID string, now time.Time) error {
	next := s.reset.NextReset(ctx, userID, now)

	prior, rolled, err := s.store.Rollover(ctx, userID, now, next)
	if err != nil {
		return err
	}
	if !rolled {
		return nil
	}

	if s.archive != nil {
		if err := s.archive.Append(prior, now); err != nil {
			// The rollover already happened; losing one snapshot line is
			// preferable to retry-induced double rollovers.
			s.logger.WarnContext(ctx, "failed to archive period snapshot",
				"user_id", userID,
				"error", err,
			)
		}
	}
	return nil
}
