package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// Op names the store operation a fault is injected into.
type Op string

const (
	OpAppendEvent    Op = "AppendEvent"
	OpAppendDwell    Op = "AppendDwell"
	OpSnapshotState  Op = "SnapshotState"
	OpInsertIdentity Op = "InsertIdentity"
)

var errInjected = errors.New("injected fault")

// Store is an in-memory Ledger. It is intended for tests, dry runs and the
// dev backend; nothing survives the process.
type Store struct {
	mu         sync.RWMutex
	identities map[types.CardID]types.Identity
	order      []types.CardID
	states     map[types.CardID]store.StateRow
	events     []types.Event
	dwell      []types.DwellRecord

	faults map[Op]int
	closed bool
}

func New() *Store {
	return &Store{
		identities: make(map[types.CardID]types.Identity),
		states:     make(map[types.CardID]store.StateRow),
		faults:     make(map[Op]int),
	}
}

// FailNext makes the next n calls of op return an ErrIO-wrapped error.
// Test-only helper.
func (s *Store) FailNext(op Op, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = n
}

// fault consumes one injected failure for op. Caller holds s.mu.
func (s *Store) fault(op Op) error {
	if s.closed {
		return store.IOError(string(op), errors.New("store closed"))
	}
	if s.faults[op] > 0 {
		s.faults[op]--
		return store.IOError(string(op), errInjected)
	}
	return nil
}

func (s *Store) SnapshotState(_ context.Context, row store.StateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpSnapshotState); err != nil {
		return err
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	s.states[row.CardID] = row
	return nil
}

func (s *Store) LoadStates(_ context.Context) (map[types.CardID]store.StateRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.CardID]store.StateRow, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out, nil
}

func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	keptEvents := s.events[:0]
	for _, ev := range s.events {
		if ev.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		keptEvents = append(keptEvents, ev)
	}
	s.events = keptEvents

	keptDwell := s.dwell[:0]
	for _, rec := range s.dwell {
		if rec.ExitAt.Before(cutoff) {
			deleted++
			continue
		}
		keptDwell = append(keptDwell, rec)
	}
	s.dwell = keptDwell

	return deleted, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.IOError("Ping", errors.New("store closed"))
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	_ store.Ledger = (*Store)(nil)
	_ store.Pruner = (*Store)(nil)
)
