package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

type SeedIdentity struct {
	CardID       string
	DisplayName  string
	ExternalCode string
}

// ParseSeedIdentities parses "uid:name:code" entries as found in the
// NFCLEDGER_SEED_IDENTITIES variable. Card ids are normalized to decimal.
func ParseSeedIdentities(entries []string) ([]SeedIdentity, error) {
	out := make([]SeedIdentity, 0, len(entries))
	for _, e := range entries {
		parts := strings.Split(e, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("seed identity %q: want uid:name:code", e)
		}
		card, err := types.ParseCardID(parts[0])
		if err != nil {
			return nil, fmt.Errorf("seed identity %q: %w", e, err)
		}
		out = append(out, SeedIdentity{
			CardID:       card.String(),
			DisplayName:  strings.TrimSpace(parts[1]),
			ExternalCode: strings.TrimSpace(parts[2]),
		})
	}
	return out, nil
}

// SeedDev inserts development identities. Existing cards are left alone so
// the seed can run on every dev startup.
func SeedDev(ctx context.Context, db *sql.DB, seeds []SeedIdentity) error {
	now := time.Now().UTC().UnixMilli()

	for _, s := range seeds {
		if s.CardID == "" || s.DisplayName == "" || s.ExternalCode == "" {
			return fmt.Errorf("seed identity %q: empty field", s.CardID)
		}
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO identities(card_id, display_name, external_code, type_code, enrolled_at_ms)
VALUES (?, ?, ?, 'E', ?);`, s.CardID, s.DisplayName, s.ExternalCode, now); err != nil {
			return fmt.Errorf("seed identity %s: %w", s.CardID, err)
		}
	}
	return nil
}
