package meeting

import "context"

// Store persists meetings with optimistic concurrency. Update succeeds only
// when the caller's Version matches the stored row; every successful write
// bumps the version, so concurrent accept/decline races lose cleanly instead
// of overwriting each other.
type Store interface {
	// Create inserts a new meeting. Returns ErrConflict if an active meeting
	// already exists for the pair (store-level invariant, race-safe).
	Create(ctx context.Context, m *Meeting) error
	// Get returns the meeting by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Meeting, error)
	// Update writes m if m.Version matches the stored version, then bumps
	// the version. Returns ErrVersionConflict when the CAS loses.
	Update(ctx context.Context, m *Meeting) error
	// ActiveBetween returns the active (requested or scheduled) meeting for
	// the unordered pair, or ErrNotFound.
	ActiveBetween(ctx context.Context, a, b string) (*Meeting, error)
	// ScheduledFor returns all scheduled meetings involving actorID.
	ScheduledFor(ctx context.Context, actorID string) ([]*Meeting, error)
	// ByIdempotencyKey returns the meeting created with key, or ErrNotFound.
	ByIdempotencyKey(ctx context.Context, key string) (*Meeting, error)
}
