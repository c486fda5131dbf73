package fuerte

import "github.com/zeebo/xxh3"

// traceHash combines a small number of strings into one fast correlation
// hash. Grounded on the teacher's use of zeebo/xxh3 for consistent-hash
// server selection (server_selector.go); repurposed here (no multi-host
// selection exists per spec §1 Non-goals) as a cheap per-request
// correlation id for Request.TraceID.
func traceHash(parts ...string) uint64 {
	h := xxh3.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\x00")
	}
	return h.Sum64()
}
