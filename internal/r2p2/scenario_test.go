package r2p2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerBytes rebuilds the wire bytes for one sent packet, for feeding back
// into handleIncomingPacket as if it had arrived over the network.
func headerBytes(t *testing.T, s fakeSent) []byte {
	t.Helper()
	buf := make([]byte, HeaderSize+len(s.payload))
	EncodeHeader(buf, &s.hdr)
	copy(buf[HeaderSize:], s.payload)
	return buf
}

// S1: single-packet request/response round trip.
func TestScenario_SinglePacketEcho(t *testing.T) {
	transport := newFakeTransport()
	timer := newFakeTimer()

	var delivered [][]byte
	var handle *ServerHandle
	w := newTestWorker(transport, timer, func(h *ServerHandle, iov [][]byte) {
		handle = h
		delivered = iov
	})

	dest := mustAddr("10.0.0.1:4433")
	var success [][]byte
	var clientHandle *ClientHandle
	errCb := -1
	err := w.sendRequest([][]byte{[]byte("ping")}, RequestContext{
		Destination: dest,
		Callbacks: RequestCallbacks{
			OnSuccess: func(h *ClientHandle, iov [][]byte) { clientHandle = h; success = iov },
			OnError:   func(code int) { errCb = code },
		},
	})
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, 1, w.PendingClientCount())

	// Deliver the request to the server side of the same worker.
	reqPkt := headerBytes(t, transport.sent[0])
	clientAddr := mustAddr("10.0.0.2:9000")
	w.handleIncomingPacket(reqPkt, clientAddr)
	require.NotNil(t, handle)
	assert.Equal(t, [][]byte{[]byte("ping")}, delivered)

	// Server replies.
	transport.sent = nil
	require.NoError(t, w.sendResponse(handle, [][]byte{[]byte("pong")}))
	require.Len(t, transport.sent, 1)
	assert.Equal(t, 0, w.PendingServerCount())
	// Response chain and server request chain returned to the pool, not
	// leaked; only the client pair's own request buffer is still held.
	assert.Equal(t, 1, w.buffers.InUse())

	// Client receives the response.
	respPkt := headerBytes(t, transport.sent[0])
	w.handleIncomingPacket(respPkt, dest)

	assert.Equal(t, [][]byte{[]byte("pong")}, success)
	assert.Equal(t, -1, errCb)
	require.NotNil(t, clientHandle)
	assert.Equal(t, 1, w.PendingClientCount()) // stays allocated until RecvRespDone

	require.NoError(t, w.recvRespDone(clientHandle))
	assert.Equal(t, 0, w.PendingClientCount())
	assert.Equal(t, 0, w.buffers.InUse())
}

// S2: a multi-packet (4096-byte) request drives the full ACK handshake
// before the server ever sees the tail of the message.
func TestScenario_MultiPacketRequestViaAckHandshake(t *testing.T) {
	transport := newFakeTransport()
	timer := newFakeTimer()

	var delivered [][]byte
	w := newTestWorker(transport, timer, func(h *ServerHandle, iov [][]byte) {
		delivered = iov
	})
	w.cfg.PayloadSize = 1400
	w.cfg.MinPayloadSize = 256
	w.buffers = NewBufferPool(64, 1400) // buffers must hold a full PayloadSize fragment

	dest := mustAddr("10.0.0.1:4433")
	payload := bytes.Repeat([]byte{0x5}, 4096)
	require.NoError(t, w.sendRequest([][]byte{payload}, RequestContext{Destination: dest}))

	// Only the head (MinPayloadSize) buffer goes out up front.
	require.Len(t, transport.sent, 1)
	assert.Equal(t, 256, len(transport.sent[0].payload))
	assert.True(t, transport.sent[0].hdr.IsFirst())
	assert.False(t, transport.sent[0].hdr.IsLast())

	clientAddr := mustAddr("10.0.0.2:9000")
	w.handleIncomingPacket(headerBytes(t, transport.sent[0]), clientAddr)
	require.Nil(t, delivered) // ACK expected before the rest of the request
	require.Len(t, transport.sent, 2) // request head + the server's ACK
	ackPkt := transport.sent[1]

	transport.sent = nil
	w.handleIncomingPacket(headerBytes(t, ackPkt), dest)
	require.Len(t, transport.sent, 3) // the three remaining fragments: 1400+1400+1040

	for _, pkt := range transport.sent {
		w.handleIncomingPacket(headerBytes(t, pkt), clientAddr)
	}

	require.NotNil(t, delivered)
	var got []byte
	for _, frag := range delivered {
		got = append(got, frag...)
	}
	assert.Equal(t, payload, got)
}

// S3: an out-of-order response fragment fails the request exactly once.
func TestScenario_OutOfOrderResponseFragmentFailsOnce(t *testing.T) {
	transport := newFakeTransport()
	timer := newFakeTimer()
	w := newTestWorker(transport, timer, nil)
	w.cfg.PayloadSize = 64
	w.cfg.MinPayloadSize = 32

	dest := mustAddr("10.0.0.1:4433")
	errCalls := 0
	var lastCode int
	require.NoError(t, w.sendRequest([][]byte{[]byte("hi")}, RequestContext{
		Destination: dest,
		Callbacks: RequestCallbacks{
			OnError: func(code int) { errCalls++; lastCode = code },
		},
	}))

	idx, cp, ok := w.clients.Find(func(cp *ClientPair) bool { return true })
	require.True(t, ok)

	// First fragment, correctly flagged first but claiming 3 total packets.
	first := Header{Type: MsgResponse, Flags: FlagFirst, RID: cp.reqID, POrder: 3}
	buf := make([]byte, HeaderSize+2)
	EncodeHeader(buf, &first)
	copy(buf[HeaderSize:], "ab")
	w.handleIncomingPacket(buf, dest)

	// Second fragment skips straight to POrder 2 instead of 1: out of order.
	second := Header{Type: MsgResponse, RID: cp.reqID, POrder: 2}
	buf2 := make([]byte, HeaderSize+2)
	EncodeHeader(buf2, &second)
	copy(buf2[HeaderSize:], "cd")
	w.handleIncomingPacket(buf2, dest)

	assert.Equal(t, 1, errCalls)
	assert.Equal(t, -1, lastCode)
	assert.Equal(t, 0, w.PendingClientCount())
	_, ok = w.clients.Get(idx)
	assert.False(t, ok)
}

// S4: a response carrying an unrecognized rid is silently dropped.
func TestScenario_UnknownResponseIsSilentlyDropped(t *testing.T) {
	transport := newFakeTransport()
	timer := newFakeTimer()
	w := newTestWorker(transport, timer, nil)

	hdr := Header{Type: MsgResponse, Flags: FlagFirst | FlagLast, RID: 0x1234, POrder: 1}
	buf := make([]byte, HeaderSize+3)
	EncodeHeader(buf, &hdr)
	copy(buf[HeaderSize:], "hey")

	assert.NotPanics(t, func() {
		w.handleIncomingPacket(buf, mustAddr("10.0.0.9:1"))
	})
	assert.Equal(t, 0, w.PendingClientCount())
}

// S5: a request to a silent peer times out exactly once.
func TestScenario_TimeoutOnSilentPeer(t *testing.T) {
	transport := newFakeTransport()
	timer := newFakeTimer()
	w := newTestWorker(transport, timer, nil)

	timeouts := 0
	require.NoError(t, w.sendRequest([][]byte{[]byte("ping")}, RequestContext{
		Destination: mustAddr("10.0.0.1:4433"),
		Callbacks: RequestCallbacks{
			OnTimeout: func() { timeouts++ },
		},
	}))
	assert.Equal(t, 1, w.PendingClientCount())

	fired := timer.fireLast()
	require.True(t, fired)
	drainTimerFires(w)

	assert.Equal(t, 1, timeouts)
	assert.Equal(t, 0, w.PendingClientCount())
}

// S6: a late duplicate response delivered after the pair succeeded but
// before the application called RecvRespDone is dropped rather than
// matching the still-allocated pair a second time; RecvRespDone then frees
// it exactly once.
func TestScenario_LateDuplicateResponseBeforeRecvRespDoneIsDropped(t *testing.T) {
	transport := newFakeTransport()
	timer := newFakeTimer()
	w := newTestWorker(transport, timer, nil)

	successes := 0
	var handle *ClientHandle
	require.NoError(t, w.sendRequest([][]byte{[]byte("ping")}, RequestContext{
		Destination: mustAddr("10.0.0.1:4433"),
		Callbacks: RequestCallbacks{
			OnSuccess: func(h *ClientHandle, _ [][]byte) { handle = h; successes++ },
		},
	}))

	dest := mustAddr("10.0.0.1:4433")
	hdr := Header{Type: MsgResponse, Flags: FlagFirst | FlagLast, RID: transport.sent[0].hdr.RID, POrder: 1}
	buf := make([]byte, HeaderSize+4)
	EncodeHeader(buf, &hdr)
	copy(buf[HeaderSize:], "pong")

	w.handleIncomingPacket(buf, dest)
	assert.Equal(t, 1, successes)
	require.NotNil(t, handle)
	// The pair is still allocated: the application hasn't called RecvRespDone yet.
	assert.Equal(t, 1, w.PendingClientCount())

	// The same response arrives again before RecvRespDone: dropped, not
	// re-delivered to the now-delivered pair.
	assert.NotPanics(t, func() {
		w.handleIncomingPacket(buf, dest)
	})
	assert.Equal(t, 1, successes) // callback never fires a second time
	assert.Equal(t, 1, w.PendingClientCount())

	require.NoError(t, w.recvRespDone(handle))
	assert.Equal(t, 0, w.PendingClientCount())

	// RecvRespDone is not idempotent: calling it again on a freed handle errors.
	assert.Error(t, w.recvRespDone(handle))
}

// Stale duplicate first-packet server requests for the same (rid, peer) are
// evicted rather than leaking a pending slot forever.
func TestScenario_DuplicateFirstPacketEvictsStaleServerPair(t *testing.T) {
	transport := newFakeTransport()
	timer := newFakeTimer()
	var deliveries int
	w := newTestWorker(transport, timer, func(*ServerHandle, [][]byte) { deliveries++ })
	w.cfg.PayloadSize = 64
	w.cfg.MinPayloadSize = 16

	client := mustAddr("10.0.0.2:9000")
	stale := Header{Type: MsgRequest, Flags: FlagFirst, RID: 7, POrder: 2}
	buf := make([]byte, HeaderSize+4)
	EncodeHeader(buf, &stale)
	copy(buf[HeaderSize:], "part")
	w.handleIncomingPacket(buf, client)
	require.Equal(t, 1, w.PendingServerCount())

	fresh := Header{Type: MsgRequest, Flags: FlagFirst | FlagLast, RID: 7, POrder: 1}
	buf2 := make([]byte, HeaderSize+4)
	EncodeHeader(buf2, &fresh)
	copy(buf2[HeaderSize:], "full")
	w.handleIncomingPacket(buf2, client)

	assert.Equal(t, 1, deliveries)
	assert.Equal(t, 1, w.PendingServerCount()) // delivered pair waits for send_response to free it
}
