package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/scan"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

// Neo4jEdgeStore persists interaction edges in Neo4j. Each unordered pair is
// stored as a single MET relationship between canonical-ordered nodes.
type Neo4jEdgeStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jEdgeStore creates an edge store backed by Neo4j.
func NewNeo4jEdgeStore(uri, user, password string, logger *zap.Logger) (*Neo4jEdgeStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Neo4jEdgeStore{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (s *Neo4jEdgeStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (s *Neo4jEdgeStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const applyQuery = `
	MERGE (a:Attendee {id: $a})
	MERGE (b:Attendee {id: $b})
	MERGE (a)-[r:MET]->(b)
	ON CREATE SET r.weight = 1, r.last_interaction_at = $at
	ON MATCH SET r.weight = r.weight + 1,
	             r.last_interaction_at = CASE
	                 WHEN r.last_interaction_at < $at THEN $at
	                 ELSE r.last_interaction_at END
	RETURN r.weight AS weight, r.last_interaction_at AS last`

// Apply increments the edge for the pair, creating it on first contact.
func (s *Neo4jEdgeStore) Apply(ctx context.Context, scannerID, targetID string, at time.Time) (*Edge, error) {
	a, b := PairKey(scannerID, targetID)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, applyQuery, map[string]interface{}{
		"a": a, "b": b, "at": at,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: apply edge %s-%s: %v", storage.ErrUnavailable, a, b, err)
	}
	if !result.Next(ctx) {
		return nil, fmt.Errorf("%w: apply edge %s-%s: no row", storage.ErrUnavailable, a, b)
	}
	rec := result.Record()
	weight, _ := rec.Get("weight")
	last, _ := rec.Get("last")

	edge := &Edge{A: a, B: b, Weight: int(weight.(int64))}
	if t, ok := last.(time.Time); ok {
		edge.LastInteractionAt = t
	} else {
		edge.LastInteractionAt = at
	}
	return edge, nil
}

// ApplyBatch folds a batch of scans inside a single write transaction, so a
// retried batch never leaves partial weights behind.
func (s *Neo4jEdgeStore) ApplyBatch(ctx context.Context, events []*scan.Event) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		for _, ev := range events {
			a, b := PairKey(ev.ScannerID, ev.TargetID)
			if _, err := tx.Run(ctx, applyQuery, map[string]interface{}{
				"a": a, "b": b, "at": ev.OccurredAt,
			}); err != nil {
				return nil, fmt.Errorf("batch edge %s-%s: %w", a, b, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: apply batch: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Edges returns all edges touching actorID.
func (s *Neo4jEdgeStore) Edges(ctx context.Context, actorID string) ([]*Edge, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Attendee {id: $id})-[r:MET]-(b:Attendee)
		 RETURN a.id AS x, b.id AS y, r.weight AS weight, r.last_interaction_at AS last`,
		map[string]interface{}{"id": actorID})
	if err != nil {
		return nil, fmt.Errorf("%w: edges for %s: %v", storage.ErrUnavailable, actorID, err)
	}
	return collectEdges(ctx, result)
}

// All returns every edge in the graph.
func (s *Neo4jEdgeStore) All(ctx context.Context) ([]*Edge, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Attendee)-[r:MET]->(b:Attendee)
		 RETURN a.id AS x, b.id AS y, r.weight AS weight, r.last_interaction_at AS last`,
		nil)
	if err != nil {
		return nil, fmt.Errorf("%w: all edges: %v", storage.ErrUnavailable, err)
	}
	return collectEdges(ctx, result)
}

func collectEdges(ctx context.Context, result neo4j.ResultWithContext) ([]*Edge, error) {
	var out []*Edge
	for result.Next(ctx) {
		rec := result.Record()
		x, _ := rec.Get("x")
		y, _ := rec.Get("y")
		weight, _ := rec.Get("weight")
		last, _ := rec.Get("last")

		a, b := PairKey(x.(string), y.(string))
		e := &Edge{A: a, B: b, Weight: int(weight.(int64))}
		if t, ok := last.(time.Time); ok {
			e.LastInteractionAt = t
		}
		out = append(out, e)
	}
	sortEdges(out)
	return out, nil
}
