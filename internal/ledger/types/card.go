package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

var ErrInvalidCardID = errors.New("card_id must be a non-zero decimal or 0x-prefixed hex integer")

// CardID is the hardware UID read from a proximity card. MFRC522 readers
// report it as a 40-bit integer; uint64 leaves headroom for 7-byte UIDs.
type CardID uint64

func (c CardID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

func (c CardID) IsZero() bool { return c == 0 }

// ParseCardID accepts a decimal UID ("584190037762") or a hex UID with a
// 0x prefix ("0x8804A1B2C3"). Surrounding whitespace is ignored.
func ParseCardID(s string) (CardID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidCardID
	}

	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCardID, s)
	}
	return CardID(v), nil
}

// CardHasher derives the card fingerprint stored alongside events so the
// audit trail can correlate presentations without holding raw UIDs.
type CardHasher struct {
	key []byte
}

// NewCardHasher builds a keyed BLAKE3 hasher from a 64-char hex key. An
// empty key falls back to unkeyed BLAKE3.
func NewCardHasher(hexKey string) (*CardHasher, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return &CardHasher{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("card hash key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("card hash key: want 32 bytes, got %d", len(key))
	}
	return &CardHasher{key: key}, nil
}

// Hash returns the hex digest for id.
func (h *CardHasher) Hash(id CardID) string {
	msg := []byte(id.String())
	if h == nil || len(h.key) == 0 {
		sum := blake3.Sum256(msg)
		return hex.EncodeToString(sum[:])
	}

	// NewKeyed only fails on a wrong key length, which the constructor rules out.
	hasher, err := blake3.NewKeyed(h.key)
	if err != nil {
		panic("card hasher: " + err.Error())
	}
	_, _ = hasher.Write(msg)
	return hex.EncodeToString(hasher.Sum(nil))
}
