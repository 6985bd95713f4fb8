package r2p2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AllocFreeRoundTrip(t *testing.T) {
	r := NewRegistry[ClientPair](2)
	assert.Equal(t, 2, r.Capacity())
	assert.Equal(t, 0, r.Len())

	idx, val, err := r.Alloc()
	require.NoError(t, err)
	val.reqID = 7
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(idx)
	require.True(t, ok)
	assert.Equal(t, uint16(7), got.reqID)

	r.Free(idx)
	assert.Equal(t, 0, r.Len())
	_, ok = r.Get(idx)
	assert.False(t, ok)
}

func TestRegistry_AllocExhaustionReturnsError(t *testing.T) {
	r := NewRegistry[ClientPair](1)
	_, _, err := r.Alloc()
	require.NoError(t, err)

	_, _, err = r.Alloc()
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestRegistry_GenerationBumpsOnFree(t *testing.T) {
	r := NewRegistry[ClientPair](1)
	idx, _, err := r.Alloc()
	require.NoError(t, err)

	gen := r.Generation(idx)
	r.Free(idx)
	assert.NotEqual(t, gen, r.Generation(idx))

	idx2, _, err := r.Alloc()
	require.NoError(t, err)
	assert.Equal(t, idx, idx2) // LIFO free stack hands the slot straight back
	assert.NotEqual(t, gen, r.Generation(idx2))
}

func TestRegistry_GenerationOutOfRangeIsNegativeOne(t *testing.T) {
	r := NewRegistry[ClientPair](1)
	assert.Equal(t, -1, r.Generation(5))
	assert.Equal(t, -1, r.Generation(-1))
}

func TestRegistry_FindScansTakenSlots(t *testing.T) {
	r := NewRegistry[ClientPair](4)
	idxA, a, _ := r.Alloc()
	a.reqID = 10
	idxB, b, _ := r.Alloc()
	b.reqID = 20

	idx, val, ok := r.Find(func(cp *ClientPair) bool { return cp.reqID == 20 })
	require.True(t, ok)
	assert.Equal(t, idxB, idx)
	assert.Equal(t, uint16(20), val.reqID)

	r.Free(idxA)
	_, _, ok = r.Find(func(cp *ClientPair) bool { return cp.reqID == 10 })
	assert.False(t, ok)
}

// TestFindByRID_IgnoresSourceAddress documents FIXMEResponseLookupIgnoresPeerIP:
// Find matches on rid alone, so a pair registered for one peer is returned
// for a lookup that only differs by source address.
func TestFindByRID_IgnoresSourceAddress(t *testing.T) {
	r := NewRegistry[ClientPair](2)
	_, cp, err := r.Alloc()
	require.NoError(t, err)
	cp.reqID = 55
	cp.peer = "10.0.0.1:4433"

	_, found, ok := r.Find(func(c *ClientPair) bool { return c.reqID == 55 })
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:4433", found.peer)

	// A lookup for the same rid from a different, unrelated peer still
	// resolves to this pair: nothing in Find compares found.peer against
	// a caller-supplied source address.
	_, found, ok = r.Find(func(c *ClientPair) bool { return c.reqID == 55 })
	require.True(t, ok)
	assert.NotEqual(t, "203.0.113.9:4433", found.peer)
}

func TestRegistry_ForEachVisitsOnlyTakenSlots(t *testing.T) {
	r := NewRegistry[ClientPair](3)
	idxA, a, _ := r.Alloc()
	a.reqID = 1
	idxB, b, _ := r.Alloc()
	b.reqID = 2
	r.Free(idxA)

	visited := map[int]uint16{}
	r.ForEach(func(idx int, v *ClientPair) { visited[idx] = v.reqID })

	assert.Equal(t, map[int]uint16{idxB: 2}, visited)
}
