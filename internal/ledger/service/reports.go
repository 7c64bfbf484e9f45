package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

const DefaultHistoryLimit = 10

// DayLayout is the date format accepted by Summary callers.
const DayLayout = "2006-01-02"

// Reports answers read-only questions over the event log. Calendar days
// are cut in loc.
type Reports struct {
	engine *Engine
	events store.EventLog
	loc    *time.Location
}

func NewReports(e *Engine, events store.EventLog, loc *time.Location) *Reports {
	if loc == nil {
		loc = time.Local
	}
	return &Reports{engine: e, events: events, loc: loc}
}

func (r *Reports) Location() *time.Location { return r.loc }

// ParseDay parses YYYY-MM-DD in the report location. An empty string means
// today.
func (r *Reports) ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return r.today(), nil
	}
	day, err := time.ParseInLocation(DayLayout, s, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want %s", s, DayLayout)
	}
	return day, nil
}

func (r *Reports) today() time.Time {
	now := r.engine.clock.Now().In(r.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
}

// Summary counts the entries and exits logged on day and lists who is
// inside right now.
func (r *Reports) Summary(ctx context.Context, day time.Time) (types.DailySummary, error) {
	day = day.In(r.loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.loc)
	end := start.AddDate(0, 0, 1)

	evs, err := r.events.Events(ctx, store.EventFilter{From: start, To: end})
	if err != nil {
		return types.DailySummary{}, fmt.Errorf("summary %s: %w", start.Format(DayLayout), err)
	}

	sum := types.DailySummary{
		Date:      start.Format(DayLayout),
		Occupants: r.engine.Occupancy(),
	}
	for _, ev := range evs {
		switch ev.Transition {
		case types.TransitionEntry:
			sum.Entries++
		case types.TransitionExit:
			sum.Exits++
		}
	}
	if sum.Occupants == nil {
		sum.Occupants = []types.OccupantRecord{}
	}
	return sum, nil
}

// History returns the newest limit events for code, oldest first. limit 0
// uses DefaultHistoryLimit; a negative limit returns everything.
func (r *Reports) History(ctx context.Context, code string, limit int) ([]types.Event, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidIdentity
	}
	switch {
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit < 0:
		limit = 0
	}

	evs, err := r.events.Events(ctx, store.EventFilter{ExternalCode: code, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", code, err)
	}
	return evs, nil
}
