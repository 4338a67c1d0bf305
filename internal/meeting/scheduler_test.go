package meeting

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/identity"
)

var (
	slotStart = time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	slot1     = Slot{Start: slotStart, End: slotStart.Add(30 * time.Minute)}
	slot2     = Slot{Start: slotStart.Add(time.Hour), End: slotStart.Add(90 * time.Minute)}
)

func newTestScheduler(t *testing.T, actors ...string) (*Scheduler, *MemoryStore) {
	t.Helper()
	dir := identity.NewMemoryDirectory()
	for _, id := range actors {
		if err := dir.Upsert(context.Background(), &identity.Attendee{ActorID: id}); err != nil {
			t.Fatalf("seed attendee %s: %v", id, err)
		}
	}
	store := NewMemoryStore()
	return NewScheduler(store, dir, zap.NewNop()), store
}

func propose(t *testing.T, s *Scheduler, requester, target string, slot Slot) *Meeting {
	t.Helper()
	m, err := s.Propose(context.Background(), requester, target, slot, "", "")
	if err != nil {
		t.Fatalf("propose %s->%s: %v", requester, target, err)
	}
	return m
}

func TestProposeCreatesRequested(t *testing.T) {
	s, _ := newTestScheduler(t, "alice", "bob")
	m := propose(t, s, "alice", "bob", slot1)

	if m.Status != StatusRequested {
		t.Errorf("expected requested, got %s", m.Status)
	}
	if m.ID == "" || m.Version != 1 {
		t.Errorf("unexpected meeting identity: %+v", m)
	}
}

func TestProposeValidation(t *testing.T) {
	s, _ := newTestScheduler(t, "alice", "bob")
	ctx := context.Background()

	if _, err := s.Propose(ctx, "alice", "alice", slot1, "", ""); !errors.Is(err, ErrInvalidParticipants) {
		t.Errorf("self-meeting: expected ErrInvalidParticipants, got %v", err)
	}
	if _, err := s.Propose(ctx, "alice", "", slot1, "", ""); !errors.Is(err, ErrInvalidParticipants) {
		t.Errorf("missing target: expected ErrInvalidParticipants, got %v", err)
	}
	if _, err := s.Propose(ctx, "alice", "ghost", slot1, "", ""); !errors.Is(err, identity.ErrNotFound) {
		t.Errorf("unknown target: expected ErrNotFound, got %v", err)
	}
	bad := Slot{Start: slot1.End, End: slot1.Start}
	if _, err := s.Propose(ctx, "alice", "bob", bad, "", ""); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("inverted slot: expected ErrInvalidSlot, got %v", err)
	}
}

func TestProposeDuplicateActivePair(t *testing.T) {
	s, store := newTestScheduler(t, "alice", "bob")
	first := propose(t, s, "alice", "bob", slot1)

	// Second proposal while the first is requested, different slot.
	_, err := s.Propose(context.Background(), "alice", "bob", slot2, "", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// Reversed direction counts as the same pair.
	_, err = s.Propose(context.Background(), "bob", "alice", slot2, "", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("reversed pair: expected ErrConflict, got %v", err)
	}

	// The prior meeting is untouched by the failed proposals.
	got, _ := store.Get(context.Background(), first.ID)
	if got.Status != StatusRequested || got.Version != 1 {
		t.Errorf("prior meeting mutated by rejected proposal: %+v", got)
	}
}

func TestProposeSlotOverlap(t *testing.T) {
	s, _ := newTestScheduler(t, "alice", "bob", "carol")
	ctx := context.Background()

	m := propose(t, s, "alice", "bob", slot1)
	if _, err := s.Accept(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// carol-bob overlaps bob's scheduled meeting.
	overlapping := Slot{Start: slot1.Start.Add(10 * time.Minute), End: slot1.End.Add(10 * time.Minute)}
	if _, err := s.Propose(ctx, "carol", "bob", overlapping, "", ""); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for double-booking, got %v", err)
	}
	// A disjoint slot for the same participant is fine.
	if _, err := s.Propose(ctx, "carol", "bob", slot2, "", ""); err != nil {
		t.Errorf("disjoint slot rejected: %v", err)
	}
}

func TestProposeIdempotencyKey(t *testing.T) {
	s, _ := newTestScheduler(t, "alice", "bob")
	ctx := context.Background()

	m1, err := s.Propose(ctx, "alice", "bob", slot1, "", "key-1")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	m2, err := s.Propose(ctx, "alice", "bob", slot1, "", "key-1")
	if err != nil {
		t.Fatalf("replayed propose: %v", err)
	}
	if m2.ID != m1.ID {
		t.Errorf("replay with same key must return the original meeting, got %s and %s", m1.ID, m2.ID)
	}
}

// lostRaceStore simulates losing a concurrent propose race: the pre-create
// idempotency and active-pair lookups both miss, then the insert collides
// with the winner's already-committed row.
type lostRaceStore struct {
	*MemoryStore
	idemMissed   bool
	activeMissed bool
}

func (r *lostRaceStore) ByIdempotencyKey(ctx context.Context, key string) (*Meeting, error) {
	if !r.idemMissed {
		r.idemMissed = true
		return nil, ErrNotFound
	}
	return r.MemoryStore.ByIdempotencyKey(ctx, key)
}

func (r *lostRaceStore) ActiveBetween(ctx context.Context, a, b string) (*Meeting, error) {
	if !r.activeMissed {
		r.activeMissed = true
		return nil, ErrNotFound
	}
	return r.MemoryStore.ActiveBetween(ctx, a, b)
}

func TestProposeIdempotencyKeyLostRace(t *testing.T) {
	ctx := context.Background()
	dir := identity.NewMemoryDirectory()
	for _, id := range []string{"alice", "bob"} {
		if err := dir.Upsert(ctx, &identity.Attendee{ActorID: id}); err != nil {
			t.Fatalf("seed attendee %s: %v", id, err)
		}
	}
	store := &lostRaceStore{MemoryStore: NewMemoryStore()}
	s := NewScheduler(store, dir, zap.NewNop())

	winner := &Meeting{
		ID: "m-winner", RequesterID: "alice", TargetID: "bob",
		Status: StatusRequested, Slot: slot1,
		IdempotencyKey: "key-9", Version: 1,
	}
	if err := store.MemoryStore.Create(ctx, winner); err != nil {
		t.Fatalf("seed winner: %v", err)
	}

	got, err := s.Propose(ctx, "alice", "bob", slot1, "", "key-9")
	if err != nil {
		t.Fatalf("losing proposal with matching key must replay, got %v", err)
	}
	if got.ID != "m-winner" {
		t.Errorf("expected the winner's meeting, got %s", got.ID)
	}

	// A different key for the same pair is a genuine conflict.
	if _, err := s.Propose(ctx, "alice", "bob", slot1, "", "key-other"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for a different key, got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	ctx := context.Background()

	t.Run("accept by target schedules", func(t *testing.T) {
		s, _ := newTestScheduler(t, "alice", "bob")
		m := propose(t, s, "alice", "bob", slot1)
		got, err := s.Accept(ctx, m.ID, "bob")
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if got.Status != StatusScheduled {
			t.Errorf("expected scheduled, got %s", got.Status)
		}
	})

	t.Run("accept by requester rejected", func(t *testing.T) {
		s, _ := newTestScheduler(t, "alice", "bob")
		m := propose(t, s, "alice", "bob", slot1)
		if _, err := s.Accept(ctx, m.ID, "alice"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("decline", func(t *testing.T) {
		s, _ := newTestScheduler(t, "alice", "bob")
		m := propose(t, s, "alice", "bob", slot1)
		got, err := s.Decline(ctx, m.ID, "bob")
		if err != nil {
			t.Fatalf("decline: %v", err)
		}
		if got.Status != StatusDeclined {
			t.Errorf("expected declined, got %s", got.Status)
		}
	})

	t.Run("withdraw by requester cancels", func(t *testing.T) {
		s, _ := newTestScheduler(t, "alice", "bob")
		m := propose(t, s, "alice", "bob", slot1)
		got, err := s.Withdraw(ctx, m.ID, "alice")
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if got.Status != StatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
	})

	t.Run("cancel scheduled by either party", func(t *testing.T) {
		s, _ := newTestScheduler(t, "alice", "bob")
		m := propose(t, s, "alice", "bob", slot1)
		s.Accept(ctx, m.ID, "bob")
		got, err := s.Cancel(ctx, m.ID, "alice")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if got.Status != StatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
	})

	t.Run("cancel requested rejected", func(t *testing.T) {
		s, _ := newTestScheduler(t, "alice", "bob")
		m := propose(t, s, "alice", "bob", slot1)
		if _, err := s.Cancel(ctx, m.ID, "alice"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestCompleteGuard(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, "alice", "bob")
	m := propose(t, s, "alice", "bob", slot1)
	s.Accept(ctx, m.ID, "bob")

	// Before the window ends.
	s.now = func() time.Time { return slot1.End.Add(-time.Minute) }
	if _, err := s.Complete(ctx, m.ID, "alice"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("early complete: expected ErrInvalidTransition, got %v", err)
	}

	// After the window ends.
	s.now = func() time.Time { return slot1.End.Add(time.Minute) }
	got, err := s.Complete(ctx, m.ID, "bob")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestTerminalStatesReject(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, "alice", "bob")
	m := propose(t, s, "alice", "bob", slot1)
	s.Accept(ctx, m.ID, "bob")
	if _, err := s.Cancel(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// A cancelled meeting rejects every further transition.
	if _, err := s.Accept(ctx, m.ID, "bob"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("accept on cancelled: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Cancel(ctx, m.ID, "alice"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel on cancelled: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Complete(ctx, m.ID, "alice"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("complete on cancelled: expected ErrInvalidTransition, got %v", err)
	}
}

func TestNewPairAfterTerminal(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, "alice", "bob")
	m := propose(t, s, "alice", "bob", slot1)
	if _, err := s.Decline(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// Declined is terminal, so the pair may meet again.
	if _, err := s.Propose(ctx, "alice", "bob", slot2, "", ""); err != nil {
		t.Errorf("new proposal after terminal state rejected: %v", err)
	}
}

// racingStore injects one concurrent version bump between the scheduler's
// read and write, so the first Update hits ErrVersionConflict.
type racingStore struct {
	*MemoryStore
	raced bool
}

func (r *racingStore) Update(ctx context.Context, m *Meeting) error {
	if !r.raced {
		r.raced = true
		other, err := r.MemoryStore.Get(ctx, m.ID)
		if err != nil {
			return err
		}
		if err := r.MemoryStore.Update(ctx, other); err != nil {
			return err
		}
	}
	return r.MemoryStore.Update(ctx, m)
}

func TestVersionConflictRetry(t *testing.T) {
	ctx := context.Background()
	dir := identity.NewMemoryDirectory()
	for _, id := range []string{"alice", "bob"} {
		if err := dir.Upsert(ctx, &identity.Attendee{ActorID: id}); err != nil {
			t.Fatalf("seed attendee %s: %v", id, err)
		}
	}
	store := &racingStore{MemoryStore: NewMemoryStore()}
	s := NewScheduler(store, dir, zap.NewNop())

	m := propose(t, s, "alice", "bob", slot1)

	got, err := s.Accept(ctx, m.ID, "bob")
	if err != nil {
		t.Fatalf("accept despite concurrent update: %v", err)
	}
	if got.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", got.Status)
	}
	if !store.raced {
		t.Fatal("race was never injected")
	}
}

func TestMemoryStoreVersionCAS(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := &Meeting{
		ID: "m1", RequesterID: "alice", TargetID: "bob",
		Status: StatusRequested, Slot: slot1, Version: 1,
	}
	if err := store.Create(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}

	a, _ := store.Get(ctx, "m1")
	b, _ := store.Get(ctx, "m1")

	a.Status = StatusScheduled
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	b.Status = StatusDeclined
	if err := store.Update(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale update: expected ErrVersionConflict, got %v", err)
	}

	got, _ := store.Get(ctx, "m1")
	if got.Status != StatusScheduled {
		t.Errorf("lost update: expected scheduled, got %s", got.Status)
	}
}

func TestSlotOverlaps(t *testing.T) {
	base := Slot{Start: slotStart, End: slotStart.Add(time.Hour)}
	cases := []struct {
		name  string
		other Slot
		want  bool
	}{
		{"identical", base, true},
		{"contained", Slot{Start: base.Start.Add(10 * time.Minute), End: base.End.Add(-10 * time.Minute)}, true},
		{"leading overlap", Slot{Start: base.Start.Add(-10 * time.Minute), End: base.Start.Add(10 * time.Minute)}, true},
		{"adjacent before", Slot{Start: base.Start.Add(-time.Hour), End: base.Start}, false},
		{"adjacent after", Slot{Start: base.End, End: base.End.Add(time.Hour)}, false},
		{"disjoint", Slot{Start: base.End.Add(time.Hour), End: base.End.Add(2 * time.Hour)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := base.Overlaps(tc.other); got != tc.want {
				t.Errorf("overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}
