// Package bufpool pools reusable byte buffers for VST chunk reads, avoiding
// one allocation per chunk on hot connections.
package bufpool

import "sync"

type Pool struct {
	pool sync.Pool
}

func New(initialSize int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, initialSize)
				return &b
			},
		},
	}
}

// Get returns a buffer with at least size capacity and length size.
func (p *Pool) Get(size int) []byte {
	bp := p.pool.Get().(*[]byte)
	b := *bp
	if cap(b) < size {
		b = make([]byte, size)
	} else {
		b = b[:size]
	}
	return b
}

func (p *Pool) Put(b []byte) {
	b = b[:0]
	p.pool.Put(&b)
}
