package fuerte

import "strings"

// RestVerb is the HTTP-shaped verb carried by a Request regardless of which
// wire protocol (HTTP or VST) eventually serializes it (spec §3).
type RestVerb int

const (
	Get RestVerb = iota
	Post
	Put
	Delete
	Head
	Patch
	Options
)

// String renders the verb the way it appears on the wire.
func (v RestVerb) String() string {
	switch v {
	case Get:
		return "GET"
	case Post:
		return "POST"
	case Put:
		return "PUT"
	case Delete:
		return "DELETE"
	case Head:
		return "HEAD"
	case Patch:
		return "PATCH"
	case Options:
		return "OPTIONS"
	default:
		return "GET"
	}
}

// ToRestVerb parses a verb string (case-insensitive), defaulting to Get for
// anything unrecognized, matching the helpers named in spec §6.
func ToRestVerb(s string) RestVerb {
	switch strings.ToUpper(s) {
	case "GET":
		return Get
	case "POST":
		return Post
	case "PUT":
		return Put
	case "DELETE":
		return Delete
	case "HEAD":
		return Head
	case "PATCH":
		return Patch
	case "OPTIONS":
		return Options
	default:
		return Get
	}
}

// QueryParam is one (key, value) pair of a Request's query string. A slice
// of these (rather than url.Values, a map) preserves insertion order and
// duplicate keys, per spec §3's explicit invariant.
type QueryParam struct {
	Key   string
	Value string
}

// Request is the message header plus payload spec §3 defines. MessageID is
// assigned by the driver at submit time and is zero until then.
type Request struct {
	Verb        RestVerb
	Database    string
	Path        string // must begin with '/'
	Parameters  []QueryParam
	Header      map[string]string // meta headers, case as given by the caller
	ContentType string
	MessageID   uint64
	Payload     []byte
}

// NewRequest builds a Request with an empty header map ready for use.
func NewRequest(verb RestVerb, path string) *Request {
	return &Request{
		Verb:   verb,
		Path:   path,
		Header: make(map[string]string),
	}
}

// AddParameter appends a query parameter, preserving duplicates and order.
func (r *Request) AddParameter(key, value string) *Request {
	r.Parameters = append(r.Parameters, QueryParam{Key: key, Value: value})
	return r
}

// SetHeader sets a meta header verbatim (case as supplied).
func (r *Request) SetHeader(name, value string) *Request {
	if r.Header == nil {
		r.Header = make(map[string]string)
	}
	r.Header[name] = value
	return r
}

// TraceID is a fast, collision-resistant correlation hash of the verb,
// database and path, computed on demand for callers that want to tag log lines or
// retries without fuerte itself depending on a logging package (SPEC_FULL
// §2 domain stack: repurposes the teacher's xxh3 hashing).
func (r *Request) TraceID() uint64 {
	return traceHash(r.Verb.String(), r.Database, r.Path)
}

// Response is the message header plus payload a completed request yields
// (spec §3). StatusCode is in [100, 599]. A failed request yields no
// Response at all; the callback's error argument carries the cause instead.
type Response struct {
	StatusCode  int
	Header      map[string]string
	ContentType string
	MessageID   uint64
	Payload     []byte
}

// RequestCallback is invoked exactly once per submitted request: on success
// (err == nil, resp populated), on transport failure (err != nil, resp nil),
// or on cancel-all during shutdown (err != nil, resp nil). The original
// Request is always passed back so the caller can resubmit (spec §7).
type RequestCallback func(err error, req *Request, resp *Response)
