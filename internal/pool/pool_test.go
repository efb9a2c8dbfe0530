package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPoolReturnsEmptyBuffers(t *testing.T) {
	p := NewBufferPool(16)

	buf := p.Get()
	assert.Equal(t, 0, buf.Len())
	assert.GreaterOrEqual(t, buf.Cap(), 16)

	buf.WriteString("parquet bytes")
	p.Put(buf)

	again := p.Get()
	assert.Equal(t, 0, again.Len())
}

func TestBufferPoolDropsOversized(t *testing.T) {
	p := NewBufferPool(0)
	assert.Equal(t, DefaultBufferSize, p.size)

	// Neither call may panic.
	p.Put(nil)
	p.Put(bytes.NewBuffer(make([]byte, 0, MaxRetainedSize+1)))
}
