package service

import (
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// Resolution is the resolver's answer for one accepted read.
type Resolution struct {
	Transition types.Transition
	Next       types.TransitionState
	// PreviousEntryAt is the entry time closed by an Exit, if one was
	// recorded. Always nil for an Entry.
	PreviousEntryAt *time.Time
}

// Resolve toggles Outside -> Entry -> Inside -> Exit -> Outside. The zero
// state is Outside. It does no I/O and does not compute durations.
func Resolve(state types.TransitionState, now time.Time) Resolution {
	if state.IsInside() {
		var prev *time.Time
		if state.LastEntryAt != nil {
			t := *state.LastEntryAt
			prev = &t
		}
		return Resolution{
			Transition:      types.TransitionExit,
			Next:            types.TransitionState{Current: types.Outside},
			PreviousEntryAt: prev,
		}
	}

	entry := now
	return Resolution{
		Transition: types.TransitionEntry,
		Next:       types.TransitionState{Current: types.Inside, LastEntryAt: &entry},
	}
}

// Dwell returns exitAt - entryAt truncated to whole seconds. A negative
// delta (clock skew) is clamped to zero.
func Dwell(entryAt, exitAt time.Time) time.Duration {
	d := exitAt.Sub(entryAt)
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// NewDwellRecord splits the dwell between entryAt and exitAt into
// hours, minutes and seconds for id.
func NewDwellRecord(id types.Identity, entryAt, exitAt time.Time) types.DwellRecord {
	secs := int64(Dwell(entryAt, exitAt) / time.Second)
	return types.DwellRecord{
		ExitAt:       exitAt,
		ExternalCode: id.ExternalCode,
		DisplayName:  id.DisplayName,
		Hours:        secs / 3600,
		Minutes:      secs % 3600 / 60,
		Seconds:      secs % 60,
	}
}
