package fuerte

import "sync"

// requestItem is the per-in-flight-request record spec §3 defines: the
// owned request and response-in-progress, the user callback, and
// protocol-specific scratch state. It is created on the submitting
// goroutine, transferred to the write queue (ownership moves there), moved
// into the message store before the first byte is written, and discarded
// after the callback returns (spec §3 "Lifecycle").
type requestItem struct {
	request  *Request
	response *Response
	callback RequestCallback

	fireOnce sync.Once

	// HTTP scratch state (spec §3, §4.4).
	httpHeader       string // pre-serialized request-line + headers
	httpBodyAccum    []byte // response body accumulator
	httpLastField    string // last parsed header field
	httpLastValue    string // last parsed header value
	httpLastWasValue bool   // flip-flop: last token parsed was a value

	// VST scratch state (spec §3, §4.5).
	vstChunks       [][]byte // pre-serialized on-wire chunks of the request
	vstReassembly   []byte   // reassembly buffer for the response body
	vstChunksWanted int      // total chunk count, known once the first chunk of the response arrives
	vstChunksSeen   int      // chunks received so far
}

func newRequestItem(req *Request, cb RequestCallback) *requestItem {
	if cb == nil {
		cb = func(error, *Request, *Response) {}
	}
	return &requestItem{request: req, callback: cb}
}

// fire invokes the callback exactly once (spec §3 invariant), regardless of
// how many code paths race to complete this item (write failure,
// cancel-all, and normal completion are mutually exclusive by construction,
// but fireOnce makes the invariant hold even if that ever changes).
func (item *requestItem) fire(err error, resp *Response) {
	item.fireOnce.Do(func() {
		item.callback(err, item.request, resp)
	})
}
