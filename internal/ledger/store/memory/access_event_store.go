package memory

import (
	"context"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

func (s *Store) AppendEvent(_ context.Context, ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpAppendEvent); err != nil {
		return err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) AppendDwell(_ context.Context, rec types.DwellRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpAppendDwell); err != nil {
		return err
	}
	s.dwell = append(s.dwell, rec)
	return nil
}

func (s *Store) Events(_ context.Context, f store.EventFilter) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Event
	for _, ev := range s.events {
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return store.TailLimit(out, f.Limit), nil
}

func (s *Store) DwellRecords(_ context.Context, f store.DwellFilter) ([]types.DwellRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.DwellRecord
	for _, rec := range s.dwell {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return store.TailLimit(out, f.Limit), nil
}
