package scan

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Result reports the outcome of ingesting one scan.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Deduplicator validates scans and drops replays and self-scans. Accepted
// scans are recorded in the seen-set exactly once; the caller forwards them
// to the graph aggregator. This component performs no scoring and has no
// side effect beyond seen-set mutation.
type Deduplicator struct {
	deduper Deduper
	logger  *zap.Logger
}

// NewDeduplicator creates a deduplicator over the given seen-set.
func NewDeduplicator(deduper Deduper, logger *zap.Logger) *Deduplicator {
	return &Deduplicator{deduper: deduper, logger: logger}
}

// Ingest processes one scan. Self-scans and replayed scan ids are reported
// as not accepted; malformed scans return ErrInvalidScan.
func (d *Deduplicator) Ingest(ctx context.Context, ev *Event) (Result, error) {
	if err := ev.Validate(); err != nil {
		if errors.Is(err, ErrSelfScan) {
			return Result{Accepted: false, Reason: "self-scan"}, nil
		}
		return Result{}, err
	}

	seen, err := d.deduper.SeenAndRecord(ctx, ev.ScanID)
	if err != nil {
		return Result{}, err
	}
	if seen {
		d.logger.Debug("duplicate scan dropped", zap.String("scan_id", ev.ScanID))
		return Result{Accepted: false, Reason: "duplicate"}, nil
	}

	return Result{Accepted: true}, nil
}

// Release removes a scan id from the seen-set. Used when a downstream edge
// write fails after the id was recorded, so a retried delivery can succeed.
func (d *Deduplicator) Release(ctx context.Context, scanID string) {
	if err := d.deduper.Unrecord(ctx, scanID); err != nil {
		d.logger.Warn("failed to release scan id",
			zap.String("scan_id", scanID),
			zap.Error(err))
	}
}
