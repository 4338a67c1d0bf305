package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocationCount is the scan volume observed at one venue location.
type LocationCount struct {
	Location string `json:"location"`
	Scans    int    `json:"scans"`
}

// Summary is a derived snapshot of where interaction is concentrated. It is
// an optimization for dashboards; edge weights and match scores never depend
// on it.
type Summary struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	TopLocations []LocationCount `json:"top_locations"`
	TopPairs     []*Edge         `json:"top_pairs"`
}

// HotspotTracker accumulates scan locations and periodically recomputes a
// busiest-locations / heaviest-pairs summary from the edge store.
type HotspotTracker struct {
	store     EdgeStore
	interval  time.Duration
	topN      int
	locations map[string]int
	summary   Summary
	cancel    context.CancelFunc
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewHotspotTracker creates a tracker that keeps the top topN entries.
func NewHotspotTracker(store EdgeStore, interval time.Duration, topN int, logger *zap.Logger) *HotspotTracker {
	return &HotspotTracker{
		store:     store,
		interval:  interval,
		topN:      topN,
		locations: make(map[string]int),
		logger:    logger,
	}
}

// Observe records one scan at a location. Empty locations are ignored.
func (t *HotspotTracker) Observe(location string) {
	if location == "" {
		return
	}
	t.mu.Lock()
	t.locations[location]++
	t.mu.Unlock()
}

// Snapshot returns the most recent summary.
func (t *HotspotTracker) Snapshot() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summary
}

// Recompute rebuilds the summary from current counters and edge weights.
func (t *HotspotTracker) Recompute(ctx context.Context) error {
	edges, err := t.store.All(ctx)
	if err != nil {
		return err
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
	if len(edges) > t.topN {
		edges = edges[:t.topN]
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	locs := make([]LocationCount, 0, len(t.locations))
	for loc, n := range t.locations {
		locs = append(locs, LocationCount{Location: loc, Scans: n})
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Scans != locs[j].Scans {
			return locs[i].Scans > locs[j].Scans
		}
		return locs[i].Location < locs[j].Location
	})
	if len(locs) > t.topN {
		locs = locs[:t.topN]
	}

	t.summary = Summary{
		GeneratedAt:  time.Now(),
		TopLocations: locs,
		TopPairs:     edges,
	}
	return nil
}

// Start begins the periodic recompute loop in a background goroutine.
func (t *HotspotTracker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.loop(ctx)
	t.logger.Info("hotspot tracker started", zap.Duration("interval", t.interval))
}

// Stop halts the recompute loop.
func (t *HotspotTracker) Stop() {
	if t.cancel != nil {
		t.cancel()
		t.logger.Info("hotspot tracker stopped")
	}
}

func (t *HotspotTracker) loop(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Recompute(ctx); err != nil {
				t.logger.Warn("hotspot recompute failed", zap.Error(err))
			}
		}
	}
}
