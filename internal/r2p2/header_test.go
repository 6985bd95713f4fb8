package r2p2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	want := Header{
		Type:   MsgRequest,
		Policy: PolicyFixedRoute,
		Flags:  FlagFirst | FlagLast,
		RID:    0xBEEF,
		POrder: 1,
	}

	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, &want)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeHeader_RejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeHeader_RejectsUnknownMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, &Header{Type: MsgRequest})
	buf[0] = Magic + 1

	_, err := DecodeHeader(buf)
	assert.ErrorIs(t, err, ErrUnknownMagic)
}

func TestHeaderPredicates(t *testing.T) {
	req := Header{Type: MsgRequest}
	assert.False(t, req.IsResponse())

	resp := Header{Type: MsgResponse}
	assert.True(t, resp.IsResponse())

	ack := Header{Type: MsgAck}
	assert.True(t, ack.IsResponse())

	first := Header{Flags: FlagFirst}
	assert.True(t, first.IsFirst())
	assert.False(t, first.IsLast())

	last := Header{Flags: FlagLast}
	assert.True(t, last.IsLast())
	assert.False(t, last.IsFirst())
}

func TestTypePolicyNibbleSplit(t *testing.T) {
	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, &Header{Type: MsgResponse, Policy: PolicyFixedRoute})

	assert.Equal(t, uint8(MsgResponse)<<4, buf[2]&0xF0)
	assert.Equal(t, uint8(PolicyFixedRoute), buf[2]&0x0F)
}
