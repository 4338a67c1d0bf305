package identity

import (
	"context"
	"sort"
	"sync"
)

// MemoryDirectory is a mutex-guarded in-memory Directory, used when no
// PostgreSQL backend is configured and in tests.
type MemoryDirectory struct {
	attendees map[string]*Attendee
	mu        sync.RWMutex
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{attendees: make(map[string]*Attendee)}
}

// Get returns the attendee for actorID, or ErrNotFound.
func (d *MemoryDirectory) Get(ctx context.Context, actorID string) (*Attendee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.attendees[actorID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Upsert creates or replaces an attendee profile.
func (d *MemoryDirectory) Upsert(ctx context.Context, a *Attendee) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *a
	d.attendees[a.ActorID] = &cp
	return nil
}

// List returns all attendees ordered by actor id.
func (d *MemoryDirectory) List(ctx context.Context) ([]*Attendee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Attendee, 0, len(d.attendees))
	for _, a := range d.attendees {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out, nil
}
