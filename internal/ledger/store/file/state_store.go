package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

type snapshotRow struct {
	CardID       string         `json:"card_id"`
	ExternalCode string         `json:"external_code"`
	CurrentState types.Presence `json:"current_state"`
	LastEntryAt  *time.Time     `json:"last_entry_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (s *Store) SnapshotState(_ context.Context, row store.StateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.IOError("SnapshotState", errClosed)
	}
	if _, ok := s.identities[row.CardID]; !ok {
		return store.IOError("SnapshotState", fmt.Errorf("card %s is not enrolled", row.CardID))
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	if row.State.Current == "" {
		row.State.Current = types.Outside
	}

	next := maps.Clone(s.states)
	next[row.CardID] = row
	if err := writeSnapshot(s.path(occupancyFile), next); err != nil {
		return store.IOError("SnapshotState", err)
	}
	s.states = next
	return nil
}

func (s *Store) LoadStates(_ context.Context) (map[types.CardID]store.StateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.IOError("LoadStates", errClosed)
	}
	return maps.Clone(s.states), nil
}

func readSnapshot(path string) (map[types.CardID]store.StateRow, error) {
	out := make(map[types.CardID]store.StateRow)

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []snapshotRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	for _, r := range rows {
		card, err := types.ParseCardID(r.CardID)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		row := store.StateRow{
			CardID:       card,
			ExternalCode: r.ExternalCode,
			State:        types.TransitionState{Current: r.CurrentState},
			UpdatedAt:    r.UpdatedAt.UTC(),
		}
		if r.LastEntryAt != nil {
			t := r.LastEntryAt.UTC()
			row.State.LastEntryAt = &t
		}
		out[card] = row
	}
	return out, nil
}

// writeSnapshot replaces path with the full table, ordered by card id so
// the file diffs cleanly.
func writeSnapshot(path string, states map[types.CardID]store.StateRow) error {
	cards := slices.Sorted(maps.Keys(states))
	rows := make([]snapshotRow, 0, len(cards))
	for _, c := range cards {
		st := states[c]
		rows = append(rows, snapshotRow{
			CardID:       c.String(),
			ExternalCode: st.ExternalCode,
			CurrentState: st.State.Current,
			LastEntryAt:  st.State.LastEntryAt,
			UpdatedAt:    st.UpdatedAt.UTC(),
		})
	}

	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(b, '\n'))
}

// writeFileAtomic writes data to a temp file in the same directory,
// fsyncs it, renames it over path and fsyncs the directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}

	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems refuse to fsync a directory; the rename has
	// already happened, so that is not reported.
	_ = d.Sync()
	return nil
}
