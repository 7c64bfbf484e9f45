// Package payload encodes the descriptor written back to self-describing
// cards. Every codec produces at most MaxPayloadBytes; anything larger is
// rejected before the card is touched.
package payload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// MaxPayloadBytes is the largest payload the card's writable sectors hold.
const MaxPayloadBytes = 130

var (
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrMalformedPayload = errors.New("malformed card payload")
	ErrUnknownCodec     = errors.New("unknown payload codec")
)

// Descriptor is what a card carries about its holder.
type Descriptor struct {
	ShortID     string `json:"i" cbor:"1,keyasint"`
	DisplayName string `json:"n" cbor:"2,keyasint"`
	TypeCode    string `json:"t" cbor:"3,keyasint"`
}

// normalize trims d and checks the required fields.
func (d Descriptor) normalize() (Descriptor, error) {
	d.ShortID = strings.TrimSpace(d.ShortID)
	d.DisplayName = strings.TrimSpace(d.DisplayName)
	d.TypeCode = types.NormalizeTypeCode(d.TypeCode)
	if d.ShortID == "" || d.DisplayName == "" {
		return Descriptor{}, fmt.Errorf("%w: id and name are required", ErrMalformedPayload)
	}
	return d, nil
}

// Identity maps the descriptor onto an enrollment for card.
func (d Descriptor) Identity(card types.CardID) types.Identity {
	return types.Identity{
		CardID:       card,
		DisplayName:  d.DisplayName,
		ExternalCode: d.ShortID,
		TypeCode:     d.TypeCode,
	}
}

type Codec interface {
	Name() string
	marshal(d Descriptor) ([]byte, error)
	unmarshal(b []byte) (Descriptor, error)
}

// CodecFor returns the codec registered under name (json, cbor, proto).
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	case "proto", "protobuf":
		return Proto, nil
	}
	return nil, fmt.Errorf("%w %q (want json, cbor or proto)", ErrUnknownCodec, name)
}

// Encode validates d and encodes it with c, refusing anything over
// MaxPayloadBytes.
func Encode(c Codec, d Descriptor) ([]byte, error) {
	d, err := d.normalize()
	if err != nil {
		return nil, err
	}
	b, err := c.marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name(), err)
	}
	if len(b) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(b), MaxPayloadBytes)
	}
	return b, nil
}

// Decode parses a payload read off a card. Readers pad the sector data
// with spaces or NULs, which are stripped first.
func Decode(c Codec, b []byte) (Descriptor, error) {
	if len(b) > MaxPayloadBytes*2 {
		return Descriptor{}, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(b))
	}
	d, err := c.unmarshal(trimPadding(c, b))
	if err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			return Descriptor{}, err
		}
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return d.normalize()
}

func trimPadding(c Codec, b []byte) []byte {
	// Binary codecs may legitimately end in a zero or space byte, so only
	// the text codec is trimmed.
	if c.Name() != JSON.Name() {
		return b
	}
	return []byte(strings.Trim(string(b), " \t\r\n\x00"))
}
