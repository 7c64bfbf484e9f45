// Package file is a plain-file Ledger: a data directory holding the
// identity list, the event and dwell logs in a configurable format, and
// an atomically replaced occupancy snapshot. Every append is fsynced
// before it returns.
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

const (
	identitiesFile = "identities.csv"
	occupancyFile  = "occupancy.json"
)

var errClosed = errors.New("store closed")

type Store struct {
	dir   string
	codec recordCodec

	mu         sync.Mutex
	closed     bool
	identities map[types.CardID]types.Identity
	states     map[types.CardID]store.StateRow
}

// Open prepares dir (creating it if needed) and loads the identity list
// and occupancy snapshot into memory.
func Open(dir string, format Format) (*Store, error) {
	codec, err := codecFor(format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}

	s := &Store{
		dir:        dir,
		codec:      codec,
		identities: make(map[types.CardID]types.Identity),
	}

	for _, name := range []string{identitiesFile, s.eventsFile(), s.dwellFile()} {
		if err := repairTail(s.path(name)); err != nil {
			return nil, store.IOError("Open", err)
		}
	}

	ids, err := readIdentities(s.path(identitiesFile))
	if err != nil {
		return nil, store.IOError("Open identities", err)
	}
	for _, id := range ids {
		s.identities[id.CardID] = id
	}

	s.states, err = readSnapshot(s.path(occupancyFile))
	if err != nil {
		return nil, store.IOError("Open occupancy", err)
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) eventsFile() string { return "events." + s.codec.ext() }
func (s *Store) dwellFile() string  { return "dwell." + s.codec.ext() }

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return store.IOError("Ping", errClosed)
	}
	if _, err := os.Stat(s.dir); err != nil {
		return store.IOError("Ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// appendLine writes header (only when the file is new) and line, then
// fsyncs. Caller holds s.mu.
func (s *Store) appendLine(name string, header, line []byte) error {
	if s.closed {
		return errClosed
	}
	f, err := os.OpenFile(s.path(name), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if header != nil {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}
		if info.Size() == 0 {
			buf.Write(header)
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// scanLines calls fn for each line of name except the header. A missing
// file has no lines.
func (s *Store) scanLines(name string, header []byte, fn func(line []byte)) error {
	f, err := os.Open(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	first := true
	for sc.Scan() {
		line := sc.Bytes()
		if first && header != nil && bytes.Equal(line, header) {
			first = false
			continue
		}
		first = false
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		fn(line)
	}
	return sc.Err()
}

// repairTail terminates a line torn by a crash mid-append so the next
// record starts on its own line. The torn fragment is skipped on read.
func repairTail(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.WriteAt([]byte{'\n'}, info.Size()); err != nil {
		return err
	}
	return f.Sync()
}

var (
	_ store.Ledger = (*Store)(nil)
	_ store.Pruner = (*Store)(nil)
)
