package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/clock"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

var (
	// ErrUnknownCard is attached to an OutcomeUnknown. Callers map it to
	// a denial; it is never a fault.
	ErrUnknownCard = errors.New("card is not enrolled")

	// ErrDuplicateRead is attached to an OutcomeCooldown. The read is
	// dropped and never logged as an event.
	ErrDuplicateRead = errors.New("duplicate read within cooldown")
)

const (
	DefaultWriteAttempts = 3
	DefaultPollInterval  = 100 * time.Millisecond
)

// Source yields card observations. ok=false means no card is present,
// which is not an error. io.EOF ends Run cleanly.
type Source interface {
	Next(ctx context.Context) (obs types.Observation, ok bool, err error)
}

type Options struct {
	Cooldown time.Duration
	// WriteAttempts bounds how many times an event append is tried before
	// the observation is reported as failed.
	WriteAttempts int
	// PollInterval is how long Run waits after an empty or failed read.
	PollInterval time.Duration

	Clock  clock.Clock
	Hasher *types.CardHasher
	Logger *slog.Logger
}

// Engine owns the directory, the dedup gate and the occupancy table and
// processes one observation at a time, end to end.
type Engine struct {
	dir    *Directory
	gate   *DedupGate
	ledger store.Ledger

	attempts int
	poll     time.Duration
	clock    clock.Clock
	hasher   *types.CardHasher
	log      *slog.Logger

	mu     sync.Mutex
	states map[types.CardID]types.TransitionState
	// dirty holds cards whose snapshot write failed after their event
	// was committed.
	dirty map[types.CardID]struct{}
}

func NewEngine(ledger store.Ledger, opts Options) *Engine {
	if opts.WriteAttempts <= 0 {
		opts.WriteAttempts = DefaultWriteAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Hasher == nil {
		opts.Hasher = &types.CardHasher{}
	}

	return &Engine{
		dir:      NewDirectory(ledger),
		gate:     NewDedupGate(opts.Cooldown),
		ledger:   ledger,
		attempts: opts.WriteAttempts,
		poll:     opts.PollInterval,
		clock:    opts.Clock,
		hasher:   opts.Hasher,
		log:      opts.Logger,
		states:   make(map[types.CardID]types.TransitionState),
		dirty:    make(map[types.CardID]struct{}),
	}
}

func (e *Engine) Directory() *Directory { return e.dir }

// Load rebuilds the directory and the occupancy table from the store.
// Only the snapshot is read; the event log is never replayed.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.dir.Load(ctx); err != nil {
		return err
	}
	rows, err := e.ledger.LoadStates(ctx)
	if err != nil {
		return fmt.Errorf("load occupancy: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.states = make(map[types.CardID]types.TransitionState, len(rows))
	for card, row := range rows {
		if _, ok := e.dir.Lookup(card); !ok {
			e.log.Warn("snapshot row for unenrolled card ignored", "external_code", row.ExternalCode)
			continue
		}
		if !row.State.Valid() {
			e.log.Warn("invalid snapshot row reset to outside",
				"external_code", row.ExternalCode, "state", row.State.Current)
			e.states[card] = types.TransitionState{Current: types.Outside}
			e.dirty[card] = struct{}{}
			continue
		}
		e.states[card] = row.State
	}

	e.log.Info("ledger loaded",
		"identities", e.dir.Len(), "inside", e.countInsideLocked())
	return nil
}

// Enroll adds a new identity. It shares the observation lock so enrollment
// never interleaves with a read in flight.
func (e *Engine) Enroll(ctx context.Context, id types.Identity) (types.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.dir.EnrollIdentity(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}
	e.log.Info("identity enrolled",
		"external_code", out.ExternalCode, "type_code", out.TypeCode)
	return out, nil
}

// HandleObservation runs one read through dedup, lookup, resolution and
// the ordered writes (event, snapshot, dwell). Every failure is reported
// on the outcome; none is returned as an error.
func (e *Engine) HandleObservation(ctx context.Context, obs types.Observation) types.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := obs.ObservedAt
	if now.IsZero() {
		now = e.clock.Now()
	}
	// SQLite keeps milliseconds. Truncating here keeps the dwell equal to
	// the delta between logged timestamps on every backend.
	now = now.UTC().Truncate(time.Millisecond)

	out := types.Outcome{CardID: obs.CardID, ObservedAt: now}

	if err := e.flushDirtyLocked(ctx); err != nil {
		e.log.Warn("snapshot retry failed", "pending", len(e.dirty), "err", err)
	}

	if !e.gate.Accept(obs.CardID, now) {
		out.Kind = types.OutcomeCooldown
		out.Err = ErrDuplicateRead
		e.log.Debug("duplicate read suppressed", "cooldown", e.gate.Cooldown())
		return out
	}

	id, ok := e.dir.Lookup(obs.CardID)
	if !ok {
		out.Kind = types.OutcomeUnknown
		out.Err = ErrUnknownCard
		e.log.Info("unknown card", "card_id", obs.CardID.String())
		return out
	}
	out.Identity = id

	res := Resolve(e.states[obs.CardID], now)
	ev := types.Event{
		ID:           newEventID(),
		Timestamp:    now,
		ExternalCode: id.ExternalCode,
		DisplayName:  id.DisplayName,
		Transition:   res.Transition,
		CardHash:     e.hasher.Hash(obs.CardID),
	}

	if err := e.appendEvent(ctx, ev); err != nil {
		// The read never happened as far as the ledger is concerned, so
		// the person may present the card again straight away.
		e.gate.Forget(obs.CardID)
		out.Kind = types.OutcomeFailed
		out.Err = err
		e.log.Error("event not committed",
			"external_code", id.ExternalCode, "transition", res.Transition, "err", err)
		return out
	}

	e.states[obs.CardID] = res.Next
	out.Kind = types.OutcomeGranted
	out.Transition = res.Transition
	out.Event = &ev

	if err := e.snapshotLocked(ctx, obs.CardID, now); err != nil {
		out.SnapshotErr = err
		e.log.Warn("snapshot write failed, will retry",
			"external_code", id.ExternalCode, "err", err)
	}

	if res.Transition == types.TransitionExit && res.PreviousEntryAt != nil {
		rec := NewDwellRecord(id, *res.PreviousEntryAt, now)
		out.Dwell = &rec
		if err := e.ledger.AppendDwell(ctx, rec); err != nil {
			out.DwellErr = err
			e.log.Warn("dwell record not written",
				"external_code", id.ExternalCode, "err", err)
		}
	}

	attrs := []any{"external_code", id.ExternalCode, "transition", res.Transition}
	if out.Dwell != nil {
		attrs = append(attrs, "dwell", out.Dwell.Duration().String())
	}
	e.log.Info("access granted", attrs...)
	return out
}

// appendEvent tries the append up to e.attempts times. Only I/O failures
// are retried.
func (e *Engine) appendEvent(ctx context.Context, ev types.Event) error {
	var err error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		err = e.ledger.AppendEvent(ctx, ev)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrIO) || ctx.Err() != nil {
			break
		}
		e.log.Debug("event append retry", "attempt", attempt, "err", err)
	}
	return err
}

// snapshotLocked writes the current state of card and tracks it as dirty
// on failure. Caller holds e.mu.
func (e *Engine) snapshotLocked(ctx context.Context, card types.CardID, at time.Time) error {
	id, _ := e.dir.Lookup(card)
	err := e.ledger.SnapshotState(ctx, store.StateRow{
		CardID:       card,
		ExternalCode: id.ExternalCode,
		State:        e.states[card],
		UpdatedAt:    at,
	})
	if err != nil {
		e.dirty[card] = struct{}{}
		return err
	}
	delete(e.dirty, card)
	return nil
}

func (e *Engine) flushDirtyLocked(ctx context.Context) error {
	if len(e.dirty) == 0 {
		return nil
	}
	var errs []error
	for card := range e.dirty {
		if err := e.snapshotLocked(ctx, card, e.clock.Now().UTC()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush retries any snapshot writes that failed earlier.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushDirtyLocked(ctx)
}

// Pending reports how many snapshot rows are waiting to be rewritten.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty)
}

// State returns the in-memory state for card; Outside if never seen.
func (e *Engine) State(card types.CardID) types.TransitionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[card]
	if st.Current == "" {
		st.Current = types.Outside
	}
	return st
}

// Occupancy lists who is inside, earliest entry first.
func (e *Engine) Occupancy() []types.OccupantRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []types.OccupantRecord
	for card, st := range e.states {
		if !st.IsInside() || st.LastEntryAt == nil {
			continue
		}
		id, ok := e.dir.Lookup(card)
		if !ok {
			continue
		}
		out = append(out, types.OccupantRecord{Identity: id, EntryAt: *st.LastEntryAt})
	}
	slices.SortFunc(out, func(a, b types.OccupantRecord) int {
		if c := a.EntryAt.Compare(b.EntryAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity.ExternalCode, b.Identity.ExternalCode)
	})
	return out
}

func (e *Engine) countInsideLocked() int {
	n := 0
	for _, st := range e.states {
		if st.IsInside() {
			n++
		}
	}
	return n
}

// Run feeds observations from src through the engine until ctx is
// cancelled or src reports io.EOF. Cancellation is only checked between
// observations; a read in progress always finishes.
func (e *Engine) Run(ctx context.Context, src Source, present func(types.Outcome)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		obs, ok, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			e.log.Warn("card read failed", "err", err)
			e.idle(ctx)
			continue
		case !ok:
			e.idle(ctx)
			continue
		}

		out := e.HandleObservation(context.WithoutCancel(ctx), obs)
		if present != nil {
			present(out)
		}
	}
}

func (e *Engine) idle(ctx context.Context) {
	t := time.NewTimer(e.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
