// Package identity holds attendee profiles. The directory is the source of
// truth for profile attributes; the matchmaking engine only reads it, except
// for boundary batch ingest of attendee records.
package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an actor is unknown to the directory.
var ErrNotFound = errors.New("attendee not found")

// Attendee is a profile participating in scans, matching, and scheduling.
type Attendee struct {
	ActorID   string   `json:"actor_id"`
	Goals     []string `json:"goals"`
	Interests []string `json:"interests"`
	Company   string   `json:"company"`
	Role      string   `json:"role"`
}

// Directory is the attendee profile store.
type Directory interface {
	// Get returns the attendee for actorID, or ErrNotFound.
	Get(ctx context.Context, actorID string) (*Attendee, error)
	// Upsert creates or replaces an attendee profile.
	Upsert(ctx context.Context, a *Attendee) error
	// List returns all attendees.
	List(ctx context.Context) ([]*Attendee, error)
}
