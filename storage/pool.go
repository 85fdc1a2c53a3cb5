package storage

import "sync"

// framePool recycles the buffers frames are assembled in before a write.
type framePool struct {
	pool sync.Pool
}

func newFramePool() *framePool {
	return &framePool{
		pool: sync.Pool{
			New: func() any {
				buf := new([]byte)             // Attempt to force allocation on heap.
				*buf = make([]byte, 0, 32<<10) // 32kb
				return buf
			},
		},
	}
}

func (p *framePool) get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *framePool) put(b *[]byte) {
	*b = (*b)[:0]

	p.pool.Put(b)
}
