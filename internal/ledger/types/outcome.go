package types

import "time"

type OutcomeKind string

const (
	// OutcomeUnknown: the card is not enrolled. A normal denial, not a fault.
	OutcomeUnknown OutcomeKind = "unknown_card"
	// OutcomeCooldown: the same card was accepted within the cooldown window.
	OutcomeCooldown OutcomeKind = "cooldown"
	OutcomeGranted  OutcomeKind = "granted"
	// OutcomeFailed: the event could not be committed; state did not advance.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is what the engine hands back to the presentation layer for
// every observation.
type Outcome struct {
	Kind       OutcomeKind
	CardID     CardID
	ObservedAt time.Time

	Identity   Identity
	Transition Transition
	Event      *Event
	Dwell      *DwellRecord

	// Err is set when Kind is OutcomeFailed.
	Err error
	// SnapshotErr and DwellErr report secondary write failures after the
	// event itself was committed.
	SnapshotErr error
	DwellErr    error
}

func (o Outcome) Granted() bool { return o.Kind == OutcomeGranted }

// OccupantRecord is one row of the "who is inside" report.
type OccupantRecord struct {
	Identity Identity  `json:"identity"`
	EntryAt  time.Time `json:"entry_at"`
}

// DailySummary counts transitions for one calendar day.
type DailySummary struct {
	Date      string           `json:"date"`
	Entries   int              `json:"entries"`
	Exits     int              `json:"exits"`
	Occupants []OccupantRecord `json:"occupants"`
}
