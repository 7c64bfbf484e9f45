package sqlite_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/db"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// openTestDB returns an in-memory SQLite connection with the production
// schema. The connection is closed automatically when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Subtest names contain '/', which the URI would treat as a path.
	name := "test_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.OpenMemory(context.Background(), name)
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn. The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

// seedIdentity inserts an identities row directly, bypassing the store.
func seedIdentity(t *testing.T, conn *sql.DB, card types.CardID, name, code string) {
	t.Helper()

	_, err := conn.ExecContext(context.Background(), `
INSERT INTO identities(card_id, display_name, external_code, type_code, enrolled_at_ms)
VALUES (?, ?, ?, 'E', ?);`, card.String(), name, code, time.Now().UTC().UnixMilli())
	if err != nil {
		t.Fatalf("seedIdentity %s: %v", card, err)
	}
}
