// Package scan normalizes and deduplicates raw badge-scan events. Scans are
// untrusted webhook input; everything is validated here before it can reach
// the graph aggregator.
package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidScan is returned for malformed or incomplete scan payloads.
	ErrInvalidScan = errors.New("invalid scan event")
	// ErrSelfScan is returned when an attendee scans their own badge.
	ErrSelfScan = errors.New("self-scan rejected")
)

// Event is a single badge scan. ScanID is the idempotency key; events are
// consumed exactly once and never mutated.
type Event struct {
	ScanID     string    `json:"scan_id"`
	ScannerID  string    `json:"scanner_actor_id"`
	TargetID   string    `json:"target_actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Location   string    `json:"location,omitempty"`
}

// Validate checks the event for structural problems.
func (e *Event) Validate() error {
	switch {
	case e.ScanID == "":
		return fmt.Errorf("%w: missing scan_id", ErrInvalidScan)
	case e.ScannerID == "":
		return fmt.Errorf("%w: missing scanner_actor_id", ErrInvalidScan)
	case e.TargetID == "":
		return fmt.Errorf("%w: missing target_actor_id", ErrInvalidScan)
	case e.OccurredAt.IsZero():
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidScan)
	case e.ScannerID == e.TargetID:
		return ErrSelfScan
	}
	return nil
}

// ParseWebhook validates a raw webhook payload into an Event. Unknown fields
// are rejected so malformed deliveries fail loudly instead of half-parsing.
func ParseWebhook(raw []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScan, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
