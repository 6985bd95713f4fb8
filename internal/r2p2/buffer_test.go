package r2p2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_GetPutRoundTrip(t *testing.T) {
	pool := NewBufferPool(2, 32)
	assert.Equal(t, 2, pool.Capacity())
	assert.Equal(t, 0, pool.InUse())

	b, err := pool.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, pool.InUse())

	copy(b.data[HeaderSize:], []byte("hello"))
	b.SetPayloadSize(5)
	assert.Equal(t, []byte("hello"), b.Payload())

	pool.Put(b)
	assert.Equal(t, 0, pool.InUse())
}

func TestBufferPool_ExhaustionReturnsError(t *testing.T) {
	pool := NewBufferPool(1, 32)
	_, err := pool.Get()
	require.NoError(t, err)

	_, err = pool.Get()
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestBufferPool_PutResetsPayloadAndLink(t *testing.T) {
	pool := NewBufferPool(2, 32)
	a, _ := pool.Get()
	b, _ := pool.Get()
	a.SetPayloadSize(10)
	a.SetNext(b)

	pool.PutChain(a)
	assert.Equal(t, 0, pool.InUse())

	reused, err := pool.Get()
	require.NoError(t, err)
	assert.Equal(t, 0, len(reused.Payload()))
	assert.Nil(t, reused.Next())
}

func TestBufferPool_PutIgnoresForeignBuffer(t *testing.T) {
	poolA := NewBufferPool(1, 32)
	poolB := NewBufferPool(1, 32)

	b, _ := poolB.Get()
	poolA.Put(b)

	assert.Equal(t, 0, poolA.InUse()) // untouched: b never belonged to poolA
	assert.Equal(t, 1, poolB.InUse()) // b still checked out of its own pool
}
