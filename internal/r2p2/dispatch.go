package r2p2

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/r2p2/r2p2d/internal/bytesize"
	"github.com/r2p2/r2p2d/internal/logger"
)

// handleIncomingPacket is the front-door dispatcher: reject anything too
// short to hold a header or carrying an unrecognized magic byte, then route
// by whether the packet belongs to the client-facing or server-facing half
// of a conversation.
func (w *Worker) handleIncomingPacket(data []byte, source *net.UDPAddr) {
	hdr, err := DecodeHeader(data)
	if err != nil {
		w.metrics.MalformedPacket()
		return
	}

	if hdr.IsResponse() {
		w.handleClientPacket(hdr, data[HeaderSize:], source)
		return
	}
	w.handleServerPacket(hdr, data[HeaderSize:], source)
}

// --- client-facing packet handling -----------------------------------

func (w *Worker) handleClientPacket(hdr Header, payload []byte, source *net.UDPAddr) {
	idx, cp, ok := w.clients.Find(func(cp *ClientPair) bool { return !cp.delivered && cp.reqID == hdr.RID })
	if !ok {
		w.metrics.UnknownResponse()
		return
	}

	switch cp.state {
	case StateWAck:
		w.handleAck(idx, cp, hdr, payload, source)
	case StateWResponse:
		w.handleResponseFragment(idx, cp, hdr, payload, source)
	}
}

func (w *Worker) handleAck(idx int, cp *ClientPair, hdr Header, payload []byte, source *net.UDPAddr) {
	if hdr.Type != MsgAck || string(payload) != "ACK" {
		return
	}

	w.timers.Disarm(cp.timer)

	if err := sendChain(w.transport, cp.request.Head.Next(), source); err != nil {
		w.failClient(idx, cp, -1)
		return
	}

	cp.state = StateWResponse
	cp.timer = w.armClientTimer(idx, w.cfg.RequestTimeout)
}

func (w *Worker) handleResponseFragment(idx int, cp *ClientPair, hdr Header, payload []byte, source *net.UDPAddr) {
	if hdr.IsFirst() {
		cp.replyExpected = int(hdr.POrder)
		cp.replyReceived = 0
	} else if int(hdr.POrder) != cp.replyReceived {
		w.metrics.OutOfOrder()
		w.failClient(idx, cp, -1)
		return
	}
	cp.replyReceived++
	logger.Debug("response fragment", logger.WorkerID(w.id), logger.ReqID(uint32(hdr.RID)),
		logger.PacketOrder(hdr.POrder), logger.PayloadLen(len(payload)))

	buf, err := w.buffers.Get()
	if err != nil {
		w.metrics.PoolExhausted("buffer")
		logger.Warn("buffer pool exhausted", logger.WorkerID(w.id), logger.PoolClass("buffer"))
		w.failClient(idx, cp, -1)
		return
	}
	n := copy(buf.data[HeaderSize:], payload)
	buf.SetPayloadSize(n)
	EncodeHeader(buf.Header(), &hdr)

	if cp.reply == nil {
		cp.reply = &Message{Head: buf, Tail: buf, Sender: source, ReqID: hdr.RID}
	} else {
		cp.reply.Tail.SetNext(buf)
		cp.reply.Tail = buf
	}

	if !hdr.IsLast() {
		return
	}

	if cp.replyReceived != cp.replyExpected {
		w.metrics.SizeMismatch()
		w.failClient(idx, cp, -1)
		return
	}

	w.timers.Disarm(cp.timer)

	iov, err := ReassembleIovec(cp.reply.Head)
	if err != nil {
		w.metrics.TooManyPackets()
		w.failClient(idx, cp, -1)
		return
	}

	if ts, ok := w.timestamper.Timestamp(); ok {
		cp.rxTimestamp = ts
		cp.hasRxTimestamp = true
	}
	cp.delivered = true
	w.metrics.ResponseReceived()
	logger.Debug("response received", logger.WorkerID(w.id), logger.ReqID(uint32(cp.reqID)),
		logger.Peer(cp.peer), logger.PacketCount(cp.replyReceived), logger.ClientState("delivered"),
		logger.DurationMs(logger.Duration(cp.startedAt)))

	if cp.ctx.Callbacks.OnSuccess != nil {
		handle := &ClientHandle{worker: w, slot: idx, gen: w.clients.Generation(idx)}
		cp.ctx.Callbacks.OnSuccess(handle, iov)
	}
}

func (w *Worker) failClient(idx int, cp *ClientPair, code int) {
	w.timers.Disarm(cp.timer)
	if cp.reply != nil {
		w.buffers.PutChain(cp.reply.Head)
	}
	w.buffers.PutChain(cp.request.Head)
	w.clients.Free(idx)
	logger.Warn("request failed", logger.WorkerID(w.id), logger.ReqID(uint32(cp.reqID)),
		logger.Peer(cp.peer), logger.ErrorCode(fmt.Sprintf("%d", code)))
	if cp.ctx.Callbacks.OnError != nil {
		cp.ctx.Callbacks.OnError(code)
	}
	w.metrics.RequestFailed()
}

func (w *Worker) onClientTimerFire(ev timerFireEvent) {
	if w.clients.Generation(ev.idx) != ev.gen {
		return // stale fire racing a slot that was already freed and reused
	}
	cp, ok := w.clients.Get(ev.idx)
	if !ok {
		return
	}
	if cp.ctx.Callbacks.OnTimeout != nil {
		cp.ctx.Callbacks.OnTimeout()
	}
	if cp.reply != nil {
		w.buffers.PutChain(cp.reply.Head)
	}
	w.buffers.PutChain(cp.request.Head)
	w.clients.Free(ev.idx)
	w.metrics.RequestTimedOut()
}

// --- server-facing packet handling -----------------------------------

func (w *Worker) handleServerPacket(hdr Header, payload []byte, source *net.UDPAddr) {
	buf, err := w.buffers.Get()
	if err != nil {
		w.metrics.PoolExhausted("buffer")
		return
	}
	n := copy(buf.data[HeaderSize:], payload)
	buf.SetPayloadSize(n)
	EncodeHeader(buf.Header(), &hdr)

	if hdr.IsFirst() {
		w.admitNewServerRequest(hdr, source, buf)
		return
	}

	peer := source.String()
	idx, sp, ok := w.servers.Find(func(sp *ServerPair) bool {
		return !sp.delivered && sp.reqID == hdr.RID && sp.peer == peer
	})
	if !ok {
		w.buffers.Put(buf)
		return
	}

	if int(hdr.POrder) != sp.requestReceived {
		w.metrics.OutOfOrder()
		w.buffers.PutChain(sp.request.Head)
		w.buffers.Put(buf)
		w.servers.Free(idx)
		return
	}
	sp.requestReceived++
	sp.request.Tail.SetNext(buf)
	sp.request.Tail = buf

	if !hdr.IsLast() {
		return
	}

	if sp.requestReceived != sp.requestExpected {
		w.metrics.SizeMismatch()
		w.buffers.PutChain(sp.request.Head)
		w.servers.Free(idx)
		return
	}

	w.deliverServerPair(idx, sp)
}

func (w *Worker) admitNewServerRequest(hdr Header, source *net.UDPAddr, buf *Buffer) {
	peer := source.String()

	// A duplicate first packet for an already-pending (rid, peer) means the
	// original exchange stalled; evict it rather than leaking its slot
	// forever waiting for fragments that will never arrive.
	if staleIdx, _, ok := w.servers.Find(func(sp *ServerPair) bool {
		return !sp.delivered && sp.reqID == hdr.RID && sp.peer == peer
	}); ok {
		w.evictServerPair(staleIdx)
	}

	idx, sp, err := w.servers.Alloc()
	if err != nil {
		w.buffers.Put(buf)
		w.metrics.PoolExhausted("server_pair")
		logger.Warn("server pair pool exhausted",
			logger.WorkerID(w.id), logger.PoolClass("server_pair"),
			logger.PoolInUse(w.servers.Len()), logger.PoolCapacity(w.servers.Capacity()))
		return
	}

	*sp = ServerPair{
		reqID:           hdr.RID,
		peer:            peer,
		sender:          source,
		policy:          hdr.Policy,
		request:         &Message{Head: buf, Tail: buf, Sender: source, ReqID: hdr.RID},
		requestExpected: int(hdr.POrder),
		requestReceived: 1,
		startedAt:       time.Now(),
	}

	if !hdr.IsLast() {
		w.sendAck(hdr.RID, source)
		return
	}

	w.deliverServerPair(idx, sp)
}

func (w *Worker) evictServerPair(idx int) {
	sp, ok := w.servers.Get(idx)
	if !ok {
		return
	}
	logger.Warn("evicting stale server pair", logger.WorkerID(w.id), logger.ReqID(uint32(sp.reqID)), logger.Peer(sp.peer))
	w.buffers.PutChain(sp.request.Head)
	w.servers.Free(idx)
	w.metrics.StaleEvicted()
}

func (w *Worker) deliverServerPair(idx int, sp *ServerPair) {
	sp.delivered = true
	iov, err := ReassembleIovec(sp.request.Head)
	if err != nil {
		w.metrics.TooManyPackets()
		w.buffers.PutChain(sp.request.Head)
		w.servers.Free(idx)
		return
	}

	total := 0
	for _, frag := range iov {
		total += len(frag)
	}
	logger.Debug("request delivered",
		logger.WorkerID(w.id), logger.ReqID(uint32(sp.reqID)), logger.Peer(sp.peer),
		logger.ServerState(sp.state()), logger.PacketCount(sp.requestReceived),
		logger.MessageLen(total), slog.String("size", bytesize.ByteSize(total).String()))

	if w.recvCB != nil {
		w.recvCB(&ServerHandle{worker: w, slot: idx}, iov)
	}
}
