package types

import (
	"fmt"
	"strings"
	"time"
)

// Identity is an enrolled person bound to a card. ExternalCode (badge or
// matricula number) is the public key used in logs instead of the raw UID.
type Identity struct {
	CardID       CardID `json:"card_id"`
	DisplayName  string `json:"display_name"`
	ExternalCode string `json:"external_code"`
	TypeCode     string `json:"type_code,omitempty"` // E employee, V visitor, A admin
}

// Type codes carried on self-describing cards.
const (
	TypeEmployee = "E"
	TypeVisitor  = "V"
	TypeAdmin    = "A"
)

// NormalizeTypeCode upper-cases code and defaults it to TypeEmployee.
func NormalizeTypeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return TypeEmployee
	}
	return code
}

type Transition string

const (
	TransitionEntry Transition = "entry"
	TransitionExit  Transition = "exit"
)

func ParseTransition(s string) (Transition, error) {
	switch Transition(strings.ToLower(strings.TrimSpace(s))) {
	case TransitionEntry:
		return TransitionEntry, nil
	case TransitionExit:
		return TransitionExit, nil
	}
	return "", fmt.Errorf("unknown transition %q", s)
}

type Presence string

const (
	Outside Presence = "outside"
	Inside  Presence = "inside"
)

// TransitionState is the per-identity occupancy state. The zero value is
// the initial state: Outside with no entry time. LastEntryAt is set iff
// Current is Inside.
type TransitionState struct {
	Current     Presence   `json:"current_state"`
	LastEntryAt *time.Time `json:"last_entry_at,omitempty"`
}

func (s TransitionState) IsInside() bool { return s.Current == Inside }

// Valid reports whether the Inside/LastEntryAt invariant holds.
func (s TransitionState) Valid() bool {
	switch s.Current {
	case Inside:
		return s.LastEntryAt != nil
	case Outside, "":
		return s.LastEntryAt == nil
	}
	return false
}

// Event is one immutable ledger record. Total order is arrival order.
type Event struct {
	ID           string     `json:"id"`
	Timestamp    time.Time  `json:"timestamp"`
	ExternalCode string     `json:"external_code"`
	DisplayName  string     `json:"display_name"`
	Transition   Transition `json:"transition"`
	CardHash     string     `json:"card_hash,omitempty"`
}

// DwellRecord is written when an Exit closes a matching Entry.
type DwellRecord struct {
	ExitAt       time.Time `json:"exit_at"`
	ExternalCode string    `json:"external_code"`
	DisplayName  string    `json:"display_name"`
	Hours        int64     `json:"hours"`
	Minutes      int64     `json:"minutes"`
	Seconds      int64     `json:"seconds"`
}

// Duration reassembles the split h/m/s fields.
func (d DwellRecord) Duration() time.Duration {
	return time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second
}

// Observation is a raw card read handed in by the reader collaborator.
type Observation struct {
	CardID     CardID    `json:"card_id"`
	ObservedAt time.Time `json:"observed_at"`
}
