package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/db"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	sqlitestore "github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/sqlite"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// SnapshotState: overwrite semantics
// ═══════════════════════════════════════════════════════════════════════════

func TestStateStore_SnapshotOverwrites(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.New(conn, newTestWriter(t, conn))
	seedIdentity(t, conn, 1, "Ana", "S001")
	ctx := context.Background()

	entry := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	if err := s.SnapshotState(ctx, store.StateRow{
		CardID:       1,
		ExternalCode: "S001",
		State:        types.TransitionState{Current: types.Inside, LastEntryAt: &entry},
	}); err != nil {
		t.Fatalf("SnapshotState inside: %v", err)
	}
	if err := s.SnapshotState(ctx, store.StateRow{
		CardID:       1,
		ExternalCode: "S001",
		State:        types.TransitionState{Current: types.Outside},
	}); err != nil {
		t.Fatalf("SnapshotState outside: %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM occupancy`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected a single snapshot row, got %d", n)
	}

	states, err := s.LoadStates(ctx)
	if err != nil {
		t.Fatalf("LoadStates: %v", err)
	}
	row := states[1]
	if row.State.Current != types.Outside || row.State.LastEntryAt != nil {
		t.Errorf("expected outside with no entry time, got %+v", row.State)
	}
}

func TestStateStore_UnknownIdentityRejected(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.New(conn, newTestWriter(t, conn))

	err := s.SnapshotState(context.Background(), store.StateRow{
		CardID: 99, ExternalCode: "S099", State: types.TransitionState{Current: types.Outside},
	})
	if !errors.Is(err, store.ErrIO) {
		t.Fatalf("expected ErrIO for unenrolled card, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Restart: the snapshot survives closing and reopening the file
// ═══════════════════════════════════════════════════════════════════════════

func TestStateStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := sqlitestore.Open(ctx, db.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.InsertIdentity(ctx, types.Identity{CardID: 5, DisplayName: "Ana", ExternalCode: "S001"}); err != nil {
		t.Fatalf("InsertIdentity: %v", err)
	}
	entry := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	if err := s.SnapshotState(ctx, store.StateRow{
		CardID: 5, ExternalCode: "S001",
		State: types.TransitionState{Current: types.Inside, LastEntryAt: &entry},
	}); err != nil {
		t.Fatalf("SnapshotState: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := sqlitestore.Open(ctx, db.Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	states, err := reopened.LoadStates(ctx)
	if err != nil {
		t.Fatalf("LoadStates: %v", err)
	}
	row, ok := states[5]
	if !ok {
		t.Fatal("expected snapshot row for card 5 after reopen")
	}
	if !row.State.IsInside() || row.State.LastEntryAt == nil || !row.State.LastEntryAt.Equal(entry) {
		t.Errorf("unexpected state after reopen: %+v", row.State)
	}
}
