package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/identity"
)

// casRetries bounds the optimistic-write retry loop for one transition.
const casRetries = 5

// Scheduler owns the meeting lifecycle. All transitions run as an atomic
// read-modify-write per meeting id; transitions for different meetings
// proceed fully in parallel.
type Scheduler struct {
	store     Store
	directory identity.Directory
	now       func() time.Time
	logger    *zap.Logger
}

// NewScheduler creates a scheduler over the given store and directory.
func NewScheduler(store Store, directory identity.Directory, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		directory: directory,
		now:       time.Now,
		logger:    logger,
	}
}

// Propose creates a requested meeting between requester and target.
// Fails with ErrConflict when an active meeting already exists for the pair
// or the slot overlaps a scheduled meeting of either participant. A repeated
// idempotency key returns the originally created meeting instead of a
// duplicate.
func (s *Scheduler) Propose(ctx context.Context, requesterID, targetID string, slot Slot, venue, idemKey string) (*Meeting, error) {
	if requesterID == "" || targetID == "" {
		return nil, fmt.Errorf("%w: requester and target are required", ErrInvalidParticipants)
	}
	if requesterID == targetID {
		return nil, fmt.Errorf("%w: cannot meet yourself", ErrInvalidParticipants)
	}
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	for _, actorID := range []string{requesterID, targetID} {
		if _, err := s.directory.Get(ctx, actorID); err != nil {
			return nil, fmt.Errorf("propose meeting: actor %s: %w", actorID, err)
		}
	}

	if idemKey != "" {
		if existing, err := s.store.ByIdempotencyKey(ctx, idemKey); err == nil {
			return existing, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if existing, err := s.store.ActiveBetween(ctx, requesterID, targetID); err == nil {
		if idemKey != "" && existing.IdempotencyKey == idemKey {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: active meeting %s already exists for pair", ErrConflict, existing.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := s.checkOverlap(ctx, slot, requesterID, targetID); err != nil {
		return nil, err
	}

	now := s.now()
	m := &Meeting{
		ID:             uuid.New().String(),
		RequesterID:    requesterID,
		TargetID:       targetID,
		Status:         StatusRequested,
		Slot:           slot,
		Venue:          venue,
		IdempotencyKey: idemKey,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := s.store.Create(ctx, m); err != nil {
		// A conflicting insert may be the same proposal winning a concurrent
		// race; a matching idempotency key makes the replay safe to return.
		if errors.Is(err, ErrConflict) && idemKey != "" {
			if existing, lookupErr := s.store.ByIdempotencyKey(ctx, idemKey); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	s.logger.Info("meeting proposed",
		zap.String("meeting_id", m.ID),
		zap.String("requester", requesterID),
		zap.String("target", targetID))
	return m, nil
}

// Accept moves a requested meeting to scheduled. Only the target may accept,
// and the slot is re-checked against both calendars at accept time.
func (s *Scheduler) Accept(ctx context.Context, meetingID, actorID string) (*Meeting, error) {
	return s.transition(ctx, meetingID, "accept", func(m *Meeting) error {
		if err := m.ensureStatus(StatusRequested, "accept"); err != nil {
			return err
		}
		if actorID != m.TargetID {
			return fmt.Errorf("%w: only the target may accept", ErrInvalidTransition)
		}
		if err := s.checkOverlap(ctx, m.Slot, m.RequesterID, m.TargetID); err != nil {
			return err
		}
		m.Status = StatusScheduled
		return nil
	})
}

// Decline moves a requested meeting to declined. Only the target may decline.
func (s *Scheduler) Decline(ctx context.Context, meetingID, actorID string) (*Meeting, error) {
	return s.transition(ctx, meetingID, "decline", func(m *Meeting) error {
		if err := m.ensureStatus(StatusRequested, "decline"); err != nil {
			return err
		}
		if actorID != m.TargetID {
			return fmt.Errorf("%w: only the target may decline", ErrInvalidTransition)
		}
		m.Status = StatusDeclined
		return nil
	})
}

// Withdraw cancels a requested meeting. Only the requester may withdraw.
func (s *Scheduler) Withdraw(ctx context.Context, meetingID, actorID string) (*Meeting, error) {
	return s.transition(ctx, meetingID, "withdraw", func(m *Meeting) error {
		if err := m.ensureStatus(StatusRequested, "withdraw"); err != nil {
			return err
		}
		if actorID != m.RequesterID {
			return fmt.Errorf("%w: only the requester may withdraw", ErrInvalidTransition)
		}
		m.Status = StatusCancelled
		return nil
	})
}

// Cancel cancels a scheduled meeting. Either participant may cancel.
func (s *Scheduler) Cancel(ctx context.Context, meetingID, actorID string) (*Meeting, error) {
	return s.transition(ctx, meetingID, "cancel", func(m *Meeting) error {
		if err := m.ensureStatus(StatusScheduled, "cancel"); err != nil {
			return err
		}
		if !m.Involves(actorID) {
			return fmt.Errorf("%w: only a participant may cancel", ErrInvalidTransition)
		}
		m.Status = StatusCancelled
		return nil
	})
}

// Complete marks a scheduled meeting completed once its time window has
// passed.
func (s *Scheduler) Complete(ctx context.Context, meetingID, actorID string) (*Meeting, error) {
	return s.transition(ctx, meetingID, "complete", func(m *Meeting) error {
		if err := m.ensureStatus(StatusScheduled, "complete"); err != nil {
			return err
		}
		if !m.Involves(actorID) {
			return fmt.Errorf("%w: only a participant may complete", ErrInvalidTransition)
		}
		if s.now().Before(m.Slot.End) {
			return fmt.Errorf("%w: meeting has not ended yet", ErrInvalidTransition)
		}
		m.Status = StatusCompleted
		return nil
	})
}

// Get returns the meeting by id.
func (s *Scheduler) Get(ctx context.Context, meetingID string) (*Meeting, error) {
	return s.store.Get(ctx, meetingID)
}

// transition runs one guarded state change under an optimistic CAS loop.
func (s *Scheduler) transition(ctx context.Context, meetingID, event string, apply func(*Meeting) error) (*Meeting, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		m, err := s.store.Get(ctx, meetingID)
		if err != nil {
			return nil, err
		}
		if err := apply(m); err != nil {
			return nil, err
		}
		err = s.store.Update(ctx, m)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("meeting transition",
			zap.String("meeting_id", m.ID),
			zap.String("event", event),
			zap.String("status", string(m.Status)))
		return m, nil
	}
	return nil, fmt.Errorf("%w: lost %d concurrent updates on %s", ErrConflict, casRetries, meetingID)
}

// checkOverlap rejects a slot that overlaps a scheduled meeting of either
// participant.
func (s *Scheduler) checkOverlap(ctx context.Context, slot Slot, actorIDs ...string) error {
	for _, actorID := range actorIDs {
		scheduled, err := s.store.ScheduledFor(ctx, actorID)
		if err != nil {
			return err
		}
		for _, other := range scheduled {
			if slot.Overlaps(other.Slot) {
				return fmt.Errorf("%w: slot overlaps meeting %s for %s", ErrConflict, other.ID, actorID)
			}
		}
	}
	return nil
}
