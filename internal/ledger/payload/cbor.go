package payload

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR packs the descriptor as a map with integer keys 1..3, which leaves
// the most room for long names.
var CBOR Codec = newCBORCodec()

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("payload: cbor enc mode: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 16,
	}.DecMode()
	if err != nil {
		panic("payload: cbor dec mode: " + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) marshal(d Descriptor) ([]byte, error) {
	return c.enc.Marshal(d)
}

func (c cborCodec) unmarshal(b []byte) (Descriptor, error) {
	var d Descriptor
	err := c.dec.Unmarshal(b, &d)
	return d, err
}
