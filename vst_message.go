package fuerte

import "github.com/0xflotus/fuerte-go/internal/vpack"

const (
	vstMessageTypeRequest  = 1
	vstMessageTypeResponse = 2
)

// encodeVSTRequestHeader serializes a Request's header fields (everything
// but the payload) per spec §4.5: version, type, database, request type,
// path, parameters and meta. Parameters are encoded as an ordered array of
// pairs rather than an object, preserving duplicate keys (spec §3
// invariant) that a map-shaped encoding would lose.
func encodeVSTRequestHeader(req *Request) []byte {
	w := vpack.NewWriter()
	w.Array(7)
	w.Int(1)
	w.Int(vstMessageTypeRequest)
	w.String(req.Database)
	w.Int(int64(req.Verb))
	w.String(req.Path)

	w.Array(len(req.Parameters))
	for _, p := range req.Parameters {
		w.Array(2)
		w.String(p.Key)
		w.String(p.Value)
	}

	w.StringMap(req.Header)
	return w.Bytes()
}

// decodeVSTResponseHeader parses a response message's header fields and
// returns them alongside the remaining bytes, which are the opaque
// response payload (spec §1: application payload is never interpreted).
func decodeVSTResponseHeader(buf []byte) (statusCode int, meta map[string]string, payload []byte, err error) {
	r := vpack.NewReader(buf)
	if _, err = r.Array(); err != nil {
		return 0, nil, nil, err
	}
	if _, err = r.Int(); err != nil { // version
		return 0, nil, nil, err
	}
	if _, err = r.Int(); err != nil { // type
		return 0, nil, nil, err
	}
	code, err := r.Int()
	if err != nil {
		return 0, nil, nil, err
	}
	meta, err = r.StringMap()
	if err != nil {
		return 0, nil, nil, err
	}
	return int(code), meta, r.Remaining(), nil
}
