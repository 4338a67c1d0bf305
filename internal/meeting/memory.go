package meeting

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store, used when no PostgreSQL
// backend is configured and in tests.
type MemoryStore struct {
	meetings map[string]*Meeting
	idemKeys map[string]string // idempotency key -> meeting id
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory meeting store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings: make(map[string]*Meeting),
		idemKeys: make(map[string]string),
	}
}

// Create inserts a new meeting, enforcing the one-active-meeting-per-pair
// invariant under the store lock.
func (s *MemoryStore) Create(ctx context.Context, m *Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.meetings {
		if existing.Status.Active() && samePair(existing, m) {
			return ErrConflict
		}
	}

	cp := *m
	s.meetings[m.ID] = &cp
	if m.IdempotencyKey != "" {
		s.idemKeys[m.IdempotencyKey] = m.ID
	}
	return nil
}

// Get returns the meeting by id, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// Update writes m if the version matches, then bumps the version.
func (s *MemoryStore) Update(ctx context.Context, m *Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.meetings[m.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != m.Version {
		return ErrVersionConflict
	}
	cp := *m
	cp.Version = m.Version + 1
	s.meetings[m.ID] = &cp
	m.Version = cp.Version
	return nil
}

// ActiveBetween returns the active meeting for the unordered pair.
func (s *MemoryStore) ActiveBetween(ctx context.Context, a, b string) (*Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	probe := &Meeting{RequesterID: a, TargetID: b}
	for _, m := range s.meetings {
		if m.Status.Active() && samePair(m, probe) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ScheduledFor returns all scheduled meetings involving actorID.
func (s *MemoryStore) ScheduledFor(ctx context.Context, actorID string) ([]*Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Meeting
	for _, m := range s.meetings {
		if m.Status == StatusScheduled && m.Involves(actorID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ByIdempotencyKey returns the meeting created with key, or ErrNotFound.
func (s *MemoryStore) ByIdempotencyKey(ctx context.Context, key string) (*Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idemKeys[key]
	if !ok {
		return nil, ErrNotFound
	}
	m, ok := s.meetings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// samePair compares participant sets ignoring direction.
func samePair(x, y *Meeting) bool {
	return (x.RequesterID == y.RequesterID && x.TargetID == y.TargetID) ||
		(x.RequesterID == y.TargetID && x.TargetID == y.RequesterID)
}
