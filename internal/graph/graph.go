// Package graph folds deduplicated scans into weighted interaction edges
// between attendee pairs. The aggregator is the only writer of edge weight.
package graph

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/scan"
)

// Edge is the aggregated interaction between an unordered attendee pair.
// A and B are stored in canonical (lexicographic) order. Weight equals the
// number of distinct scan ids folded in and only ever increases.
type Edge struct {
	A                 string    `json:"a"`
	B                 string    `json:"b"`
	Weight            int       `json:"weight"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
}

// PairKey returns the canonical unordered pair, smaller actor id first, so
// a scan of A by B and a scan of B by A land on the same edge.
func PairKey(x, y string) (string, string) {
	if y < x {
		return y, x
	}
	return x, y
}

// EdgeStore persists interaction edges.
type EdgeStore interface {
	// Apply increments the edge for the pair, creating it on first contact.
	Apply(ctx context.Context, scannerID, targetID string, at time.Time) (*Edge, error)
	// ApplyBatch folds a batch of scans atomically: all edges update or none.
	ApplyBatch(ctx context.Context, events []*scan.Event) error
	// Edges returns all edges touching actorID.
	Edges(ctx context.Context, actorID string) ([]*Edge, error)
	// All returns every edge in the graph.
	All(ctx context.Context) ([]*Edge, error)
}

// Aggregator folds accepted scans into the edge store.
type Aggregator struct {
	store   EdgeStore
	tracker *HotspotTracker
	logger  *zap.Logger
}

// NewAggregator creates an aggregator over the given store. tracker may be
// nil when hotspot summaries are disabled.
func NewAggregator(store EdgeStore, tracker *HotspotTracker, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, tracker: tracker, logger: logger}
}

// Apply folds one accepted scan into its edge and returns the updated edge.
func (a *Aggregator) Apply(ctx context.Context, ev *scan.Event) (*Edge, error) {
	edge, err := a.store.Apply(ctx, ev.ScannerID, ev.TargetID, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if a.tracker != nil {
		a.tracker.Observe(ev.Location)
	}
	a.logger.Debug("edge updated",
		zap.String("a", edge.A),
		zap.String("b", edge.B),
		zap.Int("weight", edge.Weight))
	return edge, nil
}

// ApplyBatch folds a batch of accepted scans transactionally.
func (a *Aggregator) ApplyBatch(ctx context.Context, events []*scan.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := a.store.ApplyBatch(ctx, events); err != nil {
		return err
	}
	if a.tracker != nil {
		for _, ev := range events {
			a.tracker.Observe(ev.Location)
		}
	}
	return nil
}

// Edges returns all edges touching actorID.
func (a *Aggregator) Edges(ctx context.Context, actorID string) ([]*Edge, error) {
	return a.store.Edges(ctx, actorID)
}
