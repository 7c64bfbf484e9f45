package service

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// DefaultCooldown spans one physical card lingering over the reader.
const DefaultCooldown = 3 * time.Second

// dedupSlack keeps entries around past the cooldown so a read stamped
// slightly in the past still compares against its predecessor.
const dedupSlack = time.Minute

// DedupGate suppresses repeat reads of the same card inside the cooldown
// window. State is memory only and starts empty after a restart.
//
// The cache's own expiry only bounds memory; acceptance is always decided
// against the caller-supplied now.
type DedupGate struct {
	cooldown time.Duration

	mu   sync.Mutex
	seen *cache.Cache
}

func NewDedupGate(cooldown time.Duration) *DedupGate {
	if cooldown < 0 {
		cooldown = 0
	}
	ttl := cooldown + dedupSlack
	return &DedupGate{
		cooldown: cooldown,
		seen:     cache.New(ttl, 2*ttl),
	}
}

func (g *DedupGate) Cooldown() time.Duration { return g.cooldown }

// Accept reports whether a read of card at now should be processed. An
// accepted read becomes the new reference point for the window.
func (g *DedupGate) Accept(card types.CardID, now time.Time) bool {
	key := card.String()

	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.seen.Get(key); ok {
		if last, ok := v.(time.Time); ok && now.Sub(last) < g.cooldown {
			return false
		}
	}
	g.seen.SetDefault(key, now)
	return true
}

// Forget drops card's reference point so its next read is accepted. The
// engine uses it when a read was accepted but could not be committed.
func (g *DedupGate) Forget(card types.CardID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen.Delete(card.String())
}
