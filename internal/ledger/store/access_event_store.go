package store

import (
	"context"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// EventFilter narrows an event query. Zero fields match everything.
type EventFilter struct {
	ExternalCode string
	From         time.Time // inclusive
	To           time.Time // exclusive
	// Limit keeps only the newest N matches (still returned oldest first).
	Limit int
}

func (f EventFilter) Match(ev types.Event) bool {
	if f.ExternalCode != "" && ev.ExternalCode != f.ExternalCode {
		return false
	}
	if !f.From.IsZero() && ev.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !ev.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// DwellFilter narrows a dwell query by exit time and code.
type DwellFilter struct {
	ExternalCode string
	From         time.Time
	To           time.Time
	Limit        int
}

func (f DwellFilter) Match(rec types.DwellRecord) bool {
	return EventFilter{ExternalCode: f.ExternalCode, From: f.From, To: f.To}.
		Match(types.Event{ExternalCode: rec.ExternalCode, Timestamp: rec.ExitAt})
}

// EventLog is the append-only audit trail plus the dwell log.
type EventLog interface {
	AppendEvent(ctx context.Context, ev types.Event) error
	// AppendDwell is best-effort from the engine's point of view.
	AppendDwell(ctx context.Context, rec types.DwellRecord) error

	Events(ctx context.Context, f EventFilter) ([]types.Event, error)
	DwellRecords(ctx context.Context, f DwellFilter) ([]types.DwellRecord, error)
}

// TailLimit trims s to its last n elements when n > 0.
func TailLimit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
