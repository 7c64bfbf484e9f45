package payload

import (
	"bytes"
	"encoding/json"
)

// JSON is the {"i","n","t"} object the first generation of cards carry.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) marshal(d Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (jsonCodec) unmarshal(b []byte) (Descriptor, error) {
	var d Descriptor
	err := json.Unmarshal(b, &d)
	return d, err
}
