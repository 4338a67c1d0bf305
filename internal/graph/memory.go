package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/scan"
)

// MemoryEdgeStore is a mutex-guarded in-memory EdgeStore, used when no Neo4j
// backend is configured and in tests.
type MemoryEdgeStore struct {
	edges map[[2]string]*Edge
	mu    sync.RWMutex
}

// NewMemoryEdgeStore creates an empty in-memory edge store.
func NewMemoryEdgeStore() *MemoryEdgeStore {
	return &MemoryEdgeStore{edges: make(map[[2]string]*Edge)}
}

// Apply increments the edge for the pair, creating it on first contact.
func (s *MemoryEdgeStore) Apply(ctx context.Context, scannerID, targetID string, at time.Time) (*Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.applyLocked(scannerID, targetID, at)
	cp := *e
	return &cp, nil
}

// ApplyBatch folds a batch of scans; the whole batch applies under one lock
// so concurrent readers never see a half-applied batch.
func (s *MemoryEdgeStore) ApplyBatch(ctx context.Context, events []*scan.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.applyLocked(ev.ScannerID, ev.TargetID, ev.OccurredAt)
	}
	return nil
}

func (s *MemoryEdgeStore) applyLocked(scannerID, targetID string, at time.Time) *Edge {
	a, b := PairKey(scannerID, targetID)
	key := [2]string{a, b}
	e, ok := s.edges[key]
	if !ok {
		e = &Edge{A: a, B: b}
		s.edges[key] = e
	}
	e.Weight++
	if at.After(e.LastInteractionAt) {
		e.LastInteractionAt = at
	}
	return e
}

// Edges returns all edges touching actorID.
func (s *MemoryEdgeStore) Edges(ctx context.Context, actorID string) ([]*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Edge
	for _, e := range s.edges {
		if e.A == actorID || e.B == actorID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sortEdges(out)
	return out, nil
}

// All returns every edge in the graph.
func (s *MemoryEdgeStore) All(ctx context.Context) ([]*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		cp := *e
		out = append(out, &cp)
	}
	sortEdges(out)
	return out, nil
}

func sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
}
