package util

import (
	"sync"
)

// BufferPool provides reusable byte buffers to reduce GC pressure
// while copying directory trees into archives. Buffers are zeroed before
// being returned to the pool, since they may have held key-file lines.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get retrieves a buffer from the pool.
// The buffer contents are undefined and should be overwritten.
func (p *BufferPool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool after zeroing it.
// The buffer should not be used after calling Put.
func (p *BufferPool) Put(b []byte) {
	if len(b) != p.size {
		// Don't return mismatched buffers to avoid corruption
		return
	}
	clear(b)
	p.pool.Put(&b)
}

// Default buffer pools for common sizes
var (
	// MiBPool provides 1 MiB buffers for archive copying
	MiBPool = NewBufferPool(MiB)

	// LinePool provides 64 KiB buffers for scanning key files line by line
	LinePool = NewBufferPool(64 * KiB)
)

// GetMiBBuffer gets a 1 MiB buffer from the default pool.
func GetMiBBuffer() []byte {
	return MiBPool.Get()
}

// PutMiBBuffer returns a 1 MiB buffer to the default pool.
func PutMiBBuffer(b []byte) {
	MiBPool.Put(b)
}

// GetLineBuffer gets a 64 KiB buffer from the default pool.
func GetLineBuffer() []byte {
	return LinePool.Get()
}

// PutLineBuffer returns a 64 KiB buffer to the default pool.
func PutLineBuffer(b []byte) {
	LinePool.Put(b)
}
