package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads. An observation is well under 100 bytes either way.
const maxRequestBody = 4096

const protoContentType = "application/x-protobuf"

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload. Reader modules send "application/x-protobuf".
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == protoContentType ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

var errBadProto = errors.New("invalid protobuf body")

// readObservationProto decodes
//
//	message Observation {
//	  oneof card { string card_id = 1; uint64 card_uid = 3; }
//	  string observed_at = 2;
//	}
func readObservationProto(r *http.Request) (types.ObservationRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return types.ObservationRequest{}, err
	}

	var req types.ObservationRequest
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return types.ObservationRequest{}, errBadProto
		}
		body = body[n:]

		switch {
		case (num == 1 || num == 2) && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return types.ObservationRequest{}, errBadProto
			}
			body = body[n:]
			if num == 1 {
				req.CardID = v
			} else {
				req.ObservedAt = v
			}
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return types.ObservationRequest{}, errBadProto
			}
			body = body[n:]
			req.CardID = strconv.FormatUint(v, 10)
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return types.ObservationRequest{}, errBadProto
			}
			body = body[n:]
		}
	}
	return req, nil
}

// marshalObservationResponse encodes
//
//	message ObservationResponse {
//	  bool   ok            = 1;
//	  string outcome       = 2;
//	  bool   granted       = 3;
//	  string transition    = 4;
//	  string external_code = 5;
//	  string display_name  = 6;
//	  string server_time   = 7;
//	  uint64 dwell_seconds = 8;
//	}
func marshalObservationResponse(resp types.ObservationResponse) []byte {
	var b []byte
	appendBool := func(num protowire.Number, v bool) {
		if v {
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeBool(v))
		}
	}
	appendString := func(num protowire.Number, v string) {
		if v != "" {
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, v)
		}
	}

	appendBool(1, resp.OK)
	appendString(2, string(resp.Outcome))
	appendBool(3, resp.Granted)
	appendString(4, string(resp.Transition))
	appendString(5, resp.ExternalCode)
	appendString(6, resp.DisplayName)
	appendString(7, resp.ServerTime)
	if resp.Dwell != nil {
		b = protowire.AppendTag(b, 8, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(resp.Dwell.Duration().Seconds()))
	}
	return b
}

func writeProto(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", protoContentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
