package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

var (
	ErrAlreadyEnrolled = errors.New("card is already enrolled")
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidCardID   = types.ErrInvalidCardID
)

// Directory maps card ids to enrolled identities. The identity store is
// the source of truth; the in-memory index is rebuilt from it by Load and
// only updated after a durable insert succeeds.
type Directory struct {
	store store.IdentityStore

	mu     sync.RWMutex
	byCard map[types.CardID]types.Identity
}

func NewDirectory(st store.IdentityStore) *Directory {
	return &Directory{store: st, byCard: make(map[types.CardID]types.Identity)}
}

// Load replaces the index with the store's contents.
func (d *Directory) Load(ctx context.Context) error {
	ids, err := d.store.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("load directory: %w", err)
	}

	idx := make(map[types.CardID]types.Identity, len(ids))
	for _, id := range ids {
		idx[id.CardID] = id
	}

	d.mu.Lock()
	d.byCard = idx
	d.mu.Unlock()
	return nil
}

// Lookup is a pure read. A miss is the normal unregistered-card case.
func (d *Directory) Lookup(card types.CardID) (types.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byCard[card]
	return id, ok
}

func (d *Directory) Enroll(ctx context.Context, card types.CardID, displayName, externalCode string) error {
	_, err := d.EnrollIdentity(ctx, types.Identity{
		CardID:       card,
		DisplayName:  displayName,
		ExternalCode: externalCode,
	})
	return err
}

// EnrollIdentity validates and inserts id, returning the normalized
// identity as stored. It never overwrites an existing card.
func (d *Directory) EnrollIdentity(ctx context.Context, id types.Identity) (types.Identity, error) {
	id.DisplayName = strings.TrimSpace(id.DisplayName)
	id.ExternalCode = strings.TrimSpace(id.ExternalCode)
	id.TypeCode = types.NormalizeTypeCode(id.TypeCode)

	if id.CardID.IsZero() {
		return types.Identity{}, ErrInvalidCardID
	}
	if id.DisplayName == "" || id.ExternalCode == "" {
		return types.Identity{}, fmt.Errorf("%w: display_name and external_code are required", ErrInvalidIdentity)
	}
	if err := checkLogField("display_name", id.DisplayName); err != nil {
		return types.Identity{}, err
	}
	if err := checkLogField("external_code", id.ExternalCode); err != nil {
		return types.Identity{}, err
	}
	if strings.Contains(id.ExternalCode, "|") {
		return types.Identity{}, fmt.Errorf("%w: external_code may not contain '|'", ErrInvalidIdentity)
	}
	if _, ok := d.Lookup(id.CardID); ok {
		return types.Identity{}, fmt.Errorf("%w: %s", ErrAlreadyEnrolled, id.CardID)
	}

	if err := d.store.InsertIdentity(ctx, id); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Identity{}, fmt.Errorf("%w: %s", ErrAlreadyEnrolled, id.CardID)
		}
		return types.Identity{}, fmt.Errorf("enroll %s: %w", id.CardID, err)
	}

	d.mu.Lock()
	d.byCard[id.CardID] = id
	d.mu.Unlock()
	return id, nil
}

// checkLogField rejects values that would split a log record across lines.
func checkLogField(name, v string) error {
	if strings.IndexFunc(v, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %s contains control characters", ErrInvalidIdentity, name)
	}
	return nil
}

// Identities lists every enrolled identity ordered by external code.
func (d *Directory) Identities() []types.Identity {
	d.mu.RLock()
	out := make([]types.Identity, 0, len(d.byCard))
	for _, id := range d.byCard {
		out = append(out, id)
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b types.Identity) int {
		if c := strings.Compare(a.ExternalCode, b.ExternalCode); c != 0 {
			return c
		}
		return cmp.Compare(a.CardID, b.CardID)
	})
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byCard)
}
