package file

import (
	"bytes"
	"context"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

func (s *Store) AppendEvent(_ context.Context, ev types.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	line, err := s.codec.encodeEvent(ev)
	if err != nil {
		return store.IOError("AppendEvent encode", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return store.IOError("AppendEvent", s.appendLine(s.eventsFile(), s.codec.eventHeader(), line))
}

func (s *Store) AppendDwell(_ context.Context, rec types.DwellRecord) error {
	line, err := s.codec.encodeDwell(rec)
	if err != nil {
		return store.IOError("AppendDwell encode", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return store.IOError("AppendDwell", s.appendLine(s.dwellFile(), s.codec.dwellHeader(), line))
}

// Events scans the log in file order, which is arrival order.
func (s *Store) Events(_ context.Context, f store.EventFilter) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.IOError("Events", errClosed)
	}

	var out []types.Event
	err := s.scanLines(s.eventsFile(), s.codec.eventHeader(), func(line []byte) {
		ev, err := s.codec.decodeEvent(line)
		if err != nil {
			return
		}
		if f.Match(ev) {
			out = append(out, ev)
		}
	})
	if err != nil {
		return nil, store.IOError("Events", err)
	}
	return store.TailLimit(out, f.Limit), nil
}

func (s *Store) DwellRecords(_ context.Context, f store.DwellFilter) ([]types.DwellRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.IOError("DwellRecords", errClosed)
	}

	var out []types.DwellRecord
	err := s.scanLines(s.dwellFile(), s.codec.dwellHeader(), func(line []byte) {
		rec, err := s.codec.decodeDwell(line)
		if err != nil {
			return
		}
		if f.Match(rec) {
			out = append(out, rec)
		}
	})
	if err != nil {
		return nil, store.IOError("DwellRecords", err)
	}
	return store.TailLimit(out, f.Limit), nil
}

// PruneOlderThan rewrites both logs without the records older than cutoff.
// Lines that no longer decode are kept as they are.
func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.IOError("PruneOlderThan", errClosed)
	}

	evDeleted, err := s.rewrite(s.eventsFile(), s.codec.eventHeader(), func(line []byte) bool {
		ev, err := s.codec.decodeEvent(line)
		return err == nil && ev.Timestamp.Before(cutoff)
	})
	if err != nil {
		return 0, store.IOError("PruneOlderThan events", err)
	}
	dwDeleted, err := s.rewrite(s.dwellFile(), s.codec.dwellHeader(), func(line []byte) bool {
		rec, err := s.codec.decodeDwell(line)
		return err == nil && rec.ExitAt.Before(cutoff)
	})
	if err != nil {
		return evDeleted, store.IOError("PruneOlderThan dwell", err)
	}
	return evDeleted + dwDeleted, nil
}

// rewrite atomically replaces name with the lines drop rejects. Nothing
// is written when no line is dropped. Caller holds s.mu.
func (s *Store) rewrite(name string, header []byte, drop func(line []byte) bool) (int64, error) {
	var (
		buf     bytes.Buffer
		dropped int64
	)
	if header != nil {
		buf.Write(header)
		buf.WriteByte('\n')
	}
	err := s.scanLines(name, header, func(line []byte) {
		if drop(line) {
			dropped++
			return
		}
		buf.Write(line)
		buf.WriteByte('\n')
	})
	if err != nil || dropped == 0 {
		return 0, err
	}
	return dropped, writeFileAtomic(s.path(name), buf.Bytes())
}
