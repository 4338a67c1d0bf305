// Package meeting owns the meeting-proposal state machine, conflict
// detection, and timeslot allocation.
package meeting

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned for an unknown meeting id.
	ErrNotFound = errors.New("meeting not found")
	// ErrConflict is returned when an active meeting already exists for the
	// pair, or a proposed slot overlaps a participant's scheduled meeting.
	ErrConflict = errors.New("meeting conflict")
	// ErrInvalidTransition is returned when a transition is attempted from a
	// state that does not permit it. Terminal states reject everything.
	ErrInvalidTransition = errors.New("invalid meeting transition")
	// ErrInvalidSlot is returned for malformed proposed slots.
	ErrInvalidSlot = errors.New("invalid meeting slot")
	// ErrInvalidParticipants is returned for missing or self-referential
	// participant pairs.
	ErrInvalidParticipants = errors.New("invalid meeting participants")
	// ErrVersionConflict is returned by stores when an optimistic write lost
	// a concurrent race. The scheduler retries these internally.
	ErrVersionConflict = errors.New("meeting version conflict")
)

// Status is the lifecycle state of a meeting.
type Status string

const (
	StatusRequested Status = "requested"
	StatusScheduled Status = "scheduled"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusDeclined, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether the meeting blocks a new proposal for its pair.
func (s Status) Active() bool {
	return s == StatusRequested || s == StatusScheduled
}

// Slot is a proposed meeting time window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks the slot for structural problems.
func (s Slot) Validate() error {
	switch {
	case s.Start.IsZero() || s.End.IsZero():
		return fmt.Errorf("%w: start and end are required", ErrInvalidSlot)
	case !s.End.After(s.Start):
		return fmt.Errorf("%w: end must be after start", ErrInvalidSlot)
	}
	return nil
}

// Overlaps reports whether two slots share any time.
func (s Slot) Overlaps(other Slot) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// Meeting is a proposal between a requester and a target. It is owned
// exclusively by the Scheduler; Version guards read-modify-write cycles.
type Meeting struct {
	ID             string    `json:"meeting_id"`
	RequesterID    string    `json:"requester_id"`
	TargetID       string    `json:"target_id"`
	Status         Status    `json:"status"`
	Slot           Slot      `json:"proposed_slot"`
	Venue          string    `json:"venue,omitempty"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"-"`
}

// Involves reports whether actorID is a participant.
func (m *Meeting) Involves(actorID string) bool {
	return m.RequesterID == actorID || m.TargetID == actorID
}

// ensureStatus returns ErrInvalidTransition unless the meeting is in want.
func (m *Meeting) ensureStatus(want Status, event string) error {
	if m.Status == want {
		return nil
	}
	return fmt.Errorf("%w: cannot %s a %s meeting", ErrInvalidTransition, event, m.Status)
}
