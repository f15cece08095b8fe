package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"jobtrail/internal/types"
)

// periodSnapshot is one archived line: a user's final standing for a
// completed quota period.
type periodSnapshot struct {
	UserID        string                    `json:"user_id"`
	Usage         map[string]int            `json:"usage"`
	Notifications []types.QuotaNotification `json:"notifications"`
	PeriodEnded   time.Time                 `json:"period_ended"`
	ArchivedAt    time.Time                 `json:"archived_at"`
}

// SnapshotArchiver writes pre-rollover ledger snapshots as zstd-compressed
// NDJSON. One archiver covers one sweep run; Close flushes the compression
// frame and must be called before the underlying writer is sealed.
type SnapshotArchiver struct {
	enc *zstd.Encoder
	w   io.WriteCloser
}

// NewSnapshotArchiver wraps the destination writer with a zstd encoder.
func NewSnapshotArchiver(w io.WriteCloser) (*SnapshotArchiver, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &SnapshotArchiver{enc: enc, w: w}, nil
}

// Append writes one snapshot line.
func (a *SnapshotArchiver) Append(led *types.UsageLedger, rolledAt time.Time) error {
	snap := periodSnapshot{
		UserID:        led.UserID,
		Usage:         led.Usage,
		Notifications: led.Notifications,
		PeriodEnded:   led.QuotaResetDate,
		ArchivedAt:    rolledAt.UTC(),
	}

	line, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling period snapshot for %s: %w", led.UserID, err)
	}
	line = append(line, '\n')

	if _, err := a.enc.Write(line); err != nil {
		return fmt.Errorf("writing period snapshot for %s: %w", led.UserID, err)
	}
	return nil
}

// Close flushes the compression frame and closes the destination writer.
func (a *SnapshotArchiver) Close() error {
	if err := a.enc.Close(); err != nil {
		a.w.Close()
		return fmt.Errorf("closing zstd encoder: %w", err)
	}
	return a.w.Close()
}
