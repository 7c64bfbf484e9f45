package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

var identityColumns = []string{"card_id", "display_name", "external_code", "type_code"}

func (s *Store) InsertIdentity(_ context.Context, id types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[id.CardID]; ok {
		return store.ErrDuplicate
	}
	id.TypeCode = types.NormalizeTypeCode(id.TypeCode)

	header, err := csvLine(identityColumns)
	if err != nil {
		return store.IOError("InsertIdentity", err)
	}
	line, err := csvLine([]string{id.CardID.String(), oneLine(id.DisplayName), id.ExternalCode, id.TypeCode})
	if err != nil {
		return store.IOError("InsertIdentity", err)
	}
	if err := s.appendLine(identitiesFile, header, line); err != nil {
		return store.IOError("InsertIdentity", err)
	}

	s.identities[id.CardID] = id
	return nil
}

// ListIdentities returns identities in enrollment (file) order.
func (s *Store) ListIdentities(_ context.Context) ([]types.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.IOError("ListIdentities", errClosed)
	}
	ids, err := readIdentities(s.path(identitiesFile))
	if err != nil {
		return nil, store.IOError("ListIdentities", err)
	}
	return ids, nil
}

// readIdentities parses identities.csv. A card listed twice keeps its first
// row; rows that do not parse are skipped.
func readIdentities(path string) ([]types.Identity, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var (
		out  []types.Identity
		seen = make(map[types.CardID]struct{})
	)
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("identities line %d: %w", line, err)
		}
		if line == 1 && len(rec) > 0 && rec[0] == identityColumns[0] {
			continue
		}
		if len(rec) < 3 {
			continue
		}
		card, err := types.ParseCardID(rec[0])
		if err != nil {
			continue
		}
		if _, dup := seen[card]; dup {
			continue
		}
		seen[card] = struct{}{}

		id := types.Identity{CardID: card, DisplayName: rec[1], ExternalCode: rec[2]}
		if len(rec) > 3 {
			id.TypeCode = rec[3]
		}
		id.TypeCode = types.NormalizeTypeCode(id.TypeCode)
		out = append(out, id)
	}
	return out, nil
}
