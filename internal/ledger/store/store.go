package store

import (
	"context"
	"errors"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

var (
	// ErrIO marks a durable read/write failure. Callers treat the write as
	// not committed.
	ErrIO = errors.New("ledger i/o error")

	// ErrDuplicate is returned by InsertIdentity when the card is already
	// present.
	ErrDuplicate = errors.New("identity already exists")
)

// IdentityStore persists enrolled identities. Inserts never overwrite.
type IdentityStore interface {
	InsertIdentity(ctx context.Context, id types.Identity) error
	ListIdentities(ctx context.Context) ([]types.Identity, error)
}

// StateRow is one row of the occupancy snapshot.
type StateRow struct {
	CardID       types.CardID
	ExternalCode string
	State        types.TransitionState
	UpdatedAt    time.Time
}

// StateStore holds the current-state snapshot, authoritative on restart.
type StateStore interface {
	// SnapshotState overwrites the row keyed by row.CardID.
	SnapshotState(ctx context.Context, row StateRow) error
	// LoadStates returns every snapshot row; cost is O(identities).
	LoadStates(ctx context.Context) (map[types.CardID]StateRow, error)
}

// Ledger is the full durable surface the engine writes through.
type Ledger interface {
	IdentityStore
	EventLog
	StateStore

	Ping(ctx context.Context) error
	Close() error
}

// Pruner is implemented by backends that support age-based retention of
// the event and dwell logs. The snapshot is never pruned.
type Pruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// IOError wraps err so errors.Is(err, ErrIO) holds while keeping the cause.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, err: err}
}

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }

func (e *opError) Unwrap() []error { return []error{ErrIO, e.err} }
