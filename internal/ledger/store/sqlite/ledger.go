package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	dbpkg "github.com/FerociousFuture/Proyecto-NFC-List/internal/db"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
)

// Store is the SQLite-backed Ledger. Reads go straight to db; every write is
// serialized through the single-writer worker.
type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
	owned  bool
}

// New wraps an already-migrated database. The caller keeps ownership of db
// and writer.
func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

// Open opens (and migrates) the database at cfg.Path and starts a writer.
// Close releases both.
func Open(ctx context.Context, cfg dbpkg.Config) (*Store, error) {
	conn, err := dbpkg.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return &Store{db: conn, writer: dbpkg.NewWorker(conn), owned: true}, nil
}

// DB exposes the connection for seeding and diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.IOError("Ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	s.owned = false
	s.writer.Close()
	return s.db.Close()
}

var (
	_ store.Ledger = (*Store)(nil)
	_ store.Pruner = (*Store)(nil)
)
