package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// InsertIdentity never overwrites: a conflicting card_id yields
// store.ErrDuplicate and leaves the existing row untouched.
func (s *Store) InsertIdentity(ctx context.Context, id types.Identity) error {
	nowMs := time.Now().UTC().UnixMilli()

	var inserted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO identities(card_id, display_name, external_code, type_code, enrolled_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(card_id) DO NOTHING;
`, id.CardID.String(), id.DisplayName, id.ExternalCode, types.NormalizeTypeCode(id.TypeCode), nowMs)
		if err != nil {
			return fmt.Errorf("InsertIdentity insert: %w", err)
		}
		inserted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return store.IOError("InsertIdentity", err)
	}
	if inserted == 0 {
		return store.ErrDuplicate
	}
	return nil
}

// ListIdentities returns identities in enrollment order.
func (s *Store) ListIdentities(ctx context.Context) ([]types.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT card_id, display_name, external_code, type_code
FROM identities
ORDER BY enrolled_at_ms, rowid;
`)
	if err != nil {
		return nil, store.IOError("ListIdentities query", err)
	}
	defer rows.Close()

	var out []types.Identity
	for rows.Next() {
		var (
			rawCard string
			id      types.Identity
		)
		if err := rows.Scan(&rawCard, &id.DisplayName, &id.ExternalCode, &id.TypeCode); err != nil {
			return nil, store.IOError("ListIdentities scan", err)
		}
		card, err := types.ParseCardID(rawCard)
		if err != nil {
			return nil, store.IOError("ListIdentities card_id", err)
		}
		id.CardID = card
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("ListIdentities rows", err)
	}
	return out, nil
}

// requireIdentity fails when cardID is not enrolled. The occupancy snapshot
// references identities, so a missing row is a caller bug rather than
// something to paper over with a placeholder.
//
// Must be called inside an existing transaction.
func requireIdentity(ctx context.Context, tx *sql.Tx, cardID types.CardID) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM identities WHERE card_id = ?;`, cardID.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("card %s is not enrolled", cardID)
	}
	if err != nil {
		return fmt.Errorf("requireIdentity %s: %w", cardID, err)
	}
	return nil
}
