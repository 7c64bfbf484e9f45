package memory

import (
	"context"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

func (s *Store) InsertIdentity(_ context.Context, id types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpInsertIdentity); err != nil {
		return err
	}
	if _, ok := s.identities[id.CardID]; ok {
		return store.ErrDuplicate
	}
	s.identities[id.CardID] = id
	s.order = append(s.order, id.CardID)
	return nil
}

// ListIdentities returns identities in enrollment order.
func (s *Store) ListIdentities(_ context.Context) ([]types.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Identity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.identities[id])
	}
	return out, nil
}
