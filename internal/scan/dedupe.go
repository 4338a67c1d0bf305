package scan

import (
	"context"
	"sync"
	"time"
)

// Deduper records seen scan ids to guarantee at-most-once aggregation.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was already seen within the
	// retention window and records it if not. Returns true if already seen.
	SeenAndRecord(ctx context.Context, id string) (bool, error)

	// Unrecord removes an id from the seen set so a failed downstream write
	// can be retried without tripping the duplicate check.
	Unrecord(ctx context.Context, id string) error
}

// MemoryDeduper is a TTL-bounded in-memory seen-set. Entries older than the
// retention window are purged lazily; a re-delivery past the window is
// treated as a new scan, which is an accepted trade-off.
type MemoryDeduper struct {
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
	mu        sync.Mutex
}

// NewMemoryDeduper creates a deduper with the given retention window.
func NewMemoryDeduper(retention time.Duration) *MemoryDeduper {
	return &MemoryDeduper{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// SeenAndRecord atomically checks and records id. Returns true if id was
// recorded within the retention window.
func (d *MemoryDeduper) SeenAndRecord(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.purgeLocked(now)

	if at, ok := d.seen[id]; ok && now.Sub(at) < d.retention {
		return true, nil
	}
	d.seen[id] = now
	return false, nil
}

// Unrecord removes an id from the seen set.
func (d *MemoryDeduper) Unrecord(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

// Size returns the number of tracked ids.
func (d *MemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// purgeLocked drops entries past the retention window. Caller holds d.mu.
func (d *MemoryDeduper) purgeLocked(now time.Time) {
	for id, at := range d.seen {
		if now.Sub(at) >= d.retention {
			delete(d.seen, id)
		}
	}
}
