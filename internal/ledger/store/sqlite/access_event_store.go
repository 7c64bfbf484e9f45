package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

func (s *Store) AppendEvent(ctx context.Context, ev types.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var cardHash any
	if ev.CardHash != "" {
		cardHash = ev.CardHash
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  event_id, occurred_at_ms, external_code, display_name, transition, card_hash
) VALUES (?, ?, ?, ?, ?, ?);
`,
			ev.ID, ev.Timestamp.UTC().UnixMilli(), ev.ExternalCode, ev.DisplayName,
			string(ev.Transition), cardHash,
		); err != nil {
			return fmt.Errorf("AppendEvent insert: %w", err)
		}
		return nil
	})
	return store.IOError("AppendEvent", err)
}

func (s *Store) AppendDwell(ctx context.Context, rec types.DwellRecord) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO dwell_records(exit_at_ms, external_code, display_name, hours, minutes, seconds)
VALUES (?, ?, ?, ?, ?, ?);
`,
			rec.ExitAt.UTC().UnixMilli(), rec.ExternalCode, rec.DisplayName,
			rec.Hours, rec.Minutes, rec.Seconds,
		); err != nil {
			return fmt.Errorf("AppendDwell insert: %w", err)
		}
		return nil
	})
	return store.IOError("AppendDwell", err)
}

// Events returns matches oldest first. With a Limit only the newest N are
// kept, which is how history lookups page.
func (s *Store) Events(ctx context.Context, f store.EventFilter) ([]types.Event, error) {
	where, args := timeRangeWhere("occurred_at_ms", f.ExternalCode, f.From, f.To)

	q := `SELECT event_id, occurred_at_ms, external_code, display_name, transition, card_hash
FROM access_events` + where + ` ORDER BY seq DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, store.IOError("Events query", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var (
			ev         types.Event
			ms         int64
			transition string
			cardHash   sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ms, &ev.ExternalCode, &ev.DisplayName, &transition, &cardHash); err != nil {
			return nil, store.IOError("Events scan", err)
		}
		ev.Timestamp = time.UnixMilli(ms).UTC()
		ev.Transition = types.Transition(transition)
		ev.CardHash = cardHash.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("Events rows", err)
	}

	slices.Reverse(out)
	return out, nil
}

func (s *Store) DwellRecords(ctx context.Context, f store.DwellFilter) ([]types.DwellRecord, error) {
	where, args := timeRangeWhere("exit_at_ms", f.ExternalCode, f.From, f.To)

	q := `SELECT exit_at_ms, external_code, display_name, hours, minutes, seconds
FROM dwell_records` + where + ` ORDER BY seq DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, store.IOError("DwellRecords query", err)
	}
	defer rows.Close()

	var out []types.DwellRecord
	for rows.Next() {
		var (
			rec types.DwellRecord
			ms  int64
		)
		if err := rows.Scan(&ms, &rec.ExternalCode, &rec.DisplayName, &rec.Hours, &rec.Minutes, &rec.Seconds); err != nil {
			return nil, store.IOError("DwellRecords scan", err)
		}
		rec.ExitAt = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("DwellRecords rows", err)
	}

	slices.Reverse(out)
	return out, nil
}

// PruneOlderThan deletes event and dwell rows before cutoff. The occupancy
// snapshot is left alone; it stays authoritative.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		deleted = 0
		for _, q := range []string{
			`DELETE FROM access_events WHERE occurred_at_ms < ?;`,
			`DELETE FROM dwell_records WHERE exit_at_ms < ?;`,
		} {
			res, err := tx.ExecContext(ctx, q, cutoffMs)
			if err != nil {
				return fmt.Errorf("PruneOlderThan: %w", err)
			}
			n, _ := res.RowsAffected()
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, store.IOError("PruneOlderThan", err)
	}
	return deleted, nil
}

func timeRangeWhere(col, code string, from, to time.Time) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if code != "" {
		conds = append(conds, "external_code = ?")
		args = append(args, code)
	}
	if !from.IsZero() {
		conds = append(conds, col+" >= ?")
		args = append(args, from.UTC().UnixMilli())
	}
	if !to.IsZero() {
		conds = append(conds, col+" < ?")
		args = append(args, to.UTC().UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
