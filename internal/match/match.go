// Package match computes ranked pairwise compatibility scores. Scores are
// ephemeral: recomputed per query, never persisted as a source of truth.
package match

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/graph"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/identity"
)

// Scoring weights. Fixed at design time, not per-request configuration.
// They must sum to 1 so the combined score stays in [0,1].
const (
	GoalWeight     = 0.40
	InterestWeight = 0.35
	GraphWeight    = 0.25
)

// Factor is one contributing component of a score.
type Factor struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
}

// Score is a computed compatibility result between subject and candidate.
type Score struct {
	SubjectID   string   `json:"subject_id"`
	CandidateID string   `json:"candidate_id"`
	Value       float64  `json:"value"`
	Rationale   []Factor `json:"rationale"`
}

// Engine combines profile similarity with graph proximity.
type Engine struct {
	directory identity.Directory
	edges     graph.EdgeStore
	logger    *zap.Logger
}

// NewEngine creates a match engine over the directory and edge store.
func NewEngine(directory identity.Directory, edges graph.EdgeStore, logger *zap.Logger) *Engine {
	return &Engine{directory: directory, edges: edges, logger: logger}
}

// Calculate returns up to limit matches for subjectID, best first. Ties are
// broken by smaller candidate id so the ordering is deterministic. An
// unknown subject fails with identity.ErrNotFound rather than returning an
// empty list. Candidates with no overlapping goals, no overlapping
// interests, and no interaction edge are excluded entirely.
func (e *Engine) Calculate(ctx context.Context, subjectID string, limit int) ([]*Score, error) {
	subject, err := e.directory.Get(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("match subject %s: %w", subjectID, err)
	}

	candidates, err := e.directory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	edges, err := e.edges.Edges(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("edges for %s: %w", subjectID, err)
	}
	weights := make(map[string]int, len(edges))
	maxWeight := 0
	for _, edge := range edges {
		other := edge.B
		if other == subjectID {
			other = edge.A
		}
		weights[other] = edge.Weight
		if edge.Weight > maxWeight {
			maxWeight = edge.Weight
		}
	}

	goals := toSet(subject.Goals)
	interests := toSet(subject.Interests)

	var scores []*Score
	for _, cand := range candidates {
		if cand.ActorID == subjectID {
			continue
		}

		goalSim := jaccard(goals, toSet(cand.Goals))
		interestSim := jaccard(interests, toSet(cand.Interests))
		proximity := 0.0
		if maxWeight > 0 {
			proximity = float64(weights[cand.ActorID]) / float64(maxWeight)
		}

		// Zero-overlap pairs are excluded rather than ranked last.
		if goalSim == 0 && interestSim == 0 && proximity == 0 {
			continue
		}

		factors := []Factor{
			{Name: "shared_goals", Contribution: GoalWeight * goalSim},
			{Name: "shared_interests", Contribution: InterestWeight * interestSim},
			{Name: "graph_proximity", Contribution: GraphWeight * proximity},
		}
		value := 0.0
		for _, f := range factors {
			value += f.Contribution
		}
		sort.SliceStable(factors, func(i, j int) bool {
			return factors[i].Contribution > factors[j].Contribution
		})

		scores = append(scores, &Score{
			SubjectID:   subjectID,
			CandidateID: cand.ActorID,
			Value:       clamp01(value),
			Rationale:   factors,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Value != scores[j].Value {
			return scores[i].Value > scores[j].Value
		}
		return scores[i].CandidateID < scores[j].CandidateID
	})
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

// ActorMatches summarizes one attendee's matches in a CalculateAll sweep.
type ActorMatches struct {
	ActorID    string   `json:"actor_id"`
	MatchCount int      `json:"match_count"`
	TopMatches []*Score `json:"top_matches"`
}

// CalculateAll computes matches for every attendee in the directory,
// keeping up to limit top matches per attendee.
func (e *Engine) CalculateAll(ctx context.Context, limit int) ([]*ActorMatches, error) {
	attendees, err := e.directory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}

	out := make([]*ActorMatches, 0, len(attendees))
	for _, a := range attendees {
		scores, err := e.Calculate(ctx, a.ActorID, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, &ActorMatches{
			ActorID:    a.ActorID,
			MatchCount: len(scores),
			TopMatches: scores,
		})
	}
	return out, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// jaccard returns |intersection| / |union|, 0 for two empty sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
