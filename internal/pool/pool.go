// Package pool provides reusable byte buffers backed by sync.Pool.
package pool

import (
	"bytes"
	"sync"
)

const (
	// DefaultBufferSize is the initial capacity of a pooled buffer.
	DefaultBufferSize = 64 * 1024

	// MaxRetainedSize caps the capacity of buffers returned to the pool so
	// one very large encode does not pin its memory forever.
	MaxRetainedSize = 64 << 20
)

// BufferPool manages reusable byte buffers.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool whose new buffers start with bufferSize
// bytes of capacity.
func NewBufferPool(bufferSize int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	bp := &BufferPool{size: bufferSize}
	bp.pool.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, bufferSize))
	}
	return bp
}

// Get retrieves an empty buffer from the pool.
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put returns a buffer to the pool. The caller must not use it afterwards.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > MaxRetainedSize {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}
