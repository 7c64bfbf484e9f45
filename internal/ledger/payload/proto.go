package payload

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Proto writes the descriptor in protobuf wire format:
//
//	message CardDescriptor {
//	  string id   = 1;
//	  string name = 2;
//	  string type = 3;
//	}
var Proto Codec = protoCodec{}

type protoCodec struct{}

func (protoCodec) Name() string { return "proto" }

func (protoCodec) marshal(d Descriptor) ([]byte, error) {
	var b []byte
	for _, f := range []struct {
		num protowire.Number
		val string
	}{{1, d.ShortID}, {2, d.DisplayName}, {3, d.TypeCode}} {
		if f.val == "" {
			continue
		}
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		b = protowire.AppendString(b, f.val)
	}
	return b, nil
}

func (protoCodec) unmarshal(b []byte) (Descriptor, error) {
	var d Descriptor
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Descriptor{}, protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.BytesType || num < 1 || num > 3 {
			// Unknown fields are skipped, as any protobuf reader would.
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Descriptor{}, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return Descriptor{}, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case 1:
			d.ShortID = v
		case 2:
			d.DisplayName = v
		case 3:
			d.TypeCode = v
		}
	}
	return d, nil
}
