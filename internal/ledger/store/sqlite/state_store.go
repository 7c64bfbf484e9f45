package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

func (s *Store) SnapshotState(ctx context.Context, row store.StateRow) error {
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	presence := row.State.Current
	if presence == "" {
		presence = types.Outside
	}

	var lastEntry any
	if row.State.LastEntryAt != nil {
		lastEntry = row.State.LastEntryAt.UTC().UnixMilli()
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := requireIdentity(ctx, tx, row.CardID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO occupancy(card_id, external_code, current_state, last_entry_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(card_id) DO UPDATE SET
  external_code    = excluded.external_code,
  current_state    = excluded.current_state,
  last_entry_at_ms = excluded.last_entry_at_ms,
  updated_at_ms    = excluded.updated_at_ms;
`, row.CardID.String(), row.ExternalCode, string(presence), lastEntry, row.UpdatedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("SnapshotState upsert: %w", err)
		}
		return nil
	})
	return store.IOError("SnapshotState", err)
}

func (s *Store) LoadStates(ctx context.Context) (map[types.CardID]store.StateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT card_id, external_code, current_state, last_entry_at_ms, updated_at_ms
FROM occupancy;
`)
	if err != nil {
		return nil, store.IOError("LoadStates query", err)
	}
	defer rows.Close()

	out := make(map[types.CardID]store.StateRow)
	for rows.Next() {
		var (
			rawCard   string
			code      string
			presence  string
			lastEntry sql.NullInt64
			updatedMs int64
		)
		if err := rows.Scan(&rawCard, &code, &presence, &lastEntry, &updatedMs); err != nil {
			return nil, store.IOError("LoadStates scan", err)
		}
		card, err := types.ParseCardID(rawCard)
		if err != nil {
			return nil, store.IOError("LoadStates card_id", err)
		}

		row := store.StateRow{
			CardID:       card,
			ExternalCode: code,
			State:        types.TransitionState{Current: types.Presence(presence)},
			UpdatedAt:    time.UnixMilli(updatedMs).UTC(),
		}
		if lastEntry.Valid {
			t := time.UnixMilli(lastEntry.Int64).UTC()
			row.State.LastEntryAt = &t
		}
		out[card] = row
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("LoadStates rows", err)
	}
	return out, nil
}
