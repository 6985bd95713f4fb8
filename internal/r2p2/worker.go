package r2p2

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/r2p2/r2p2d/internal/logger"
)

// WorkerConfig holds the per-worker tunables shared by every pair it
// handles.
type WorkerConfig struct {
	PayloadSize    int
	MinPayloadSize int
	RequestTimeout time.Duration
	AckTimeout     time.Duration
}

// WorkerParams bundles everything NewWorker needs to wire up a Worker. It
// exists mainly so Engine can construct many workers with a clear,
// self-documenting call rather than a long positional argument list.
type WorkerParams struct {
	ID          string
	Config      WorkerConfig
	Buffers     *BufferPool
	Clients     *Registry[ClientPair]
	Servers     *Registry[ServerPair]
	Transport   Transport
	Timer       Timer
	Metrics     *Metrics
	RecvCB      ReceiveFunc
	Notifier    RouterNotifier
	Timestamper Timestamper
}

type inboundPacket struct {
	data []byte
	addr *net.UDPAddr
}

type requestJob struct {
	iov  [][]byte
	ctx  RequestContext
	errC chan error
}

type responseJob struct {
	handle *ServerHandle
	iov    [][]byte
	errC   chan error
}

type doneJob struct {
	handle *ClientHandle
	errC   chan error
}

type timerFireEvent struct {
	idx int
	gen int
}

// Worker is the engine's shared-nothing, per-thread unit: its own buffer
// pool, its own client and server pair registries, and its own run loop.
// Nothing here is touched by more than one goroutine at a time; Run is the
// only goroutine that ever mutates pool or registry state directly,
// everything else communicates with it over channels.
type Worker struct {
	id          string
	cfg         WorkerConfig
	buffers     *BufferPool
	clients     *Registry[ClientPair]
	servers     *Registry[ServerPair]
	transport   Transport
	timers      Timer
	metrics     *Metrics
	notifier    RouterNotifier
	recvCB      ReceiveFunc
	timestamper Timestamper

	packets    chan inboundPacket
	timerFires chan timerFireEvent
	requests   chan requestJob
	responses  chan responseJob
	dones      chan doneJob
}

// NewWorker constructs a Worker from the given parameters, defaulting
// Timer, RouterNotifier, and Timestamper when left unset.
func NewWorker(p WorkerParams) *Worker {
	timer := p.Timer
	if timer == nil {
		timer = realTimer{}
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	timestamper := p.Timestamper
	if timestamper == nil {
		timestamper = newPlatformTimestamper()
	}
	return &Worker{
		id:          p.ID,
		cfg:         p.Config,
		buffers:     p.Buffers,
		clients:     p.Clients,
		servers:     p.Servers,
		transport:   p.Transport,
		timers:      timer,
		metrics:     p.Metrics,
		notifier:    notifier,
		recvCB:      p.RecvCB,
		timestamper: timestamper,

		packets:    make(chan inboundPacket, 256),
		timerFires: make(chan timerFireEvent, p.Clients.Capacity()),
		requests:   make(chan requestJob, 64),
		responses:  make(chan responseJob, 64),
		dones:      make(chan doneJob, 64),
	}
}

// ID returns the worker's identifier, used in log fields and metric labels.
func (w *Worker) ID() string { return w.id }

// PendingClientCount reports the number of in-flight client pairs.
func (w *Worker) PendingClientCount() int { return w.clients.Len() }

// PendingServerCount reports the number of in-flight server pairs.
func (w *Worker) PendingServerCount() int { return w.servers.Len() }

// Run drains the worker's event channels until ctx is canceled. It is the
// only goroutine allowed to call the worker's unexported, non-reentrant
// handling methods.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-w.packets:
			w.handleIncomingPacket(pkt.data, pkt.addr)
		case ev := <-w.timerFires:
			w.onClientTimerFire(ev)
		case job := <-w.requests:
			job.errC <- w.sendRequest(job.iov, job.ctx)
		case job := <-w.responses:
			job.errC <- w.sendResponse(job.handle, job.iov)
		case job := <-w.dones:
			job.errC <- w.recvRespDone(job.handle)
		}
	}
}

// Deliver enqueues one inbound datagram for processing by the worker's own
// goroutine. Called by the Engine's dispatch loop, never directly by
// application code.
func (w *Worker) Deliver(data []byte, addr *net.UDPAddr) bool {
	select {
	case w.packets <- inboundPacket{data: data, addr: addr}:
		return true
	default:
		w.metrics.DroppedFull()
		return false
	}
}

// SendRequest is the engine's external send_request entry point. It blocks
// until the worker's own goroutine has processed the request.
func (w *Worker) SendRequest(iov [][]byte, reqCtx RequestContext) error {
	errC := make(chan error, 1)
	w.requests <- requestJob{iov: iov, ctx: reqCtx, errC: errC}
	return <-errC
}

// SendResponse is the engine's external send_response entry point.
func (w *Worker) SendResponse(handle *ServerHandle, iov [][]byte) error {
	errC := make(chan error, 1)
	w.responses <- responseJob{handle: handle, iov: iov, errC: errC}
	return <-errC
}

// RecvRespDone is the engine's external recv_resp_done entry point: it
// releases a ClientPair the application is done reading the response
// iovec from, after a prior OnSuccess callback. Until this is called, the
// pair stays allocated and a late duplicate fragment for its rid is
// dropped rather than matching a reused slot.
func (w *Worker) RecvRespDone(handle *ClientHandle) error {
	errC := make(chan error, 1)
	w.dones <- doneJob{handle: handle, errC: errC}
	return <-errC
}

// nextRID draws a random 16-bit request id, retrying a bounded number of
// times to avoid colliding with one already in flight on this worker.
func (w *Worker) nextRID() uint16 {
	for i := 0; i < 16; i++ {
		rid := uint16(rand.Uint32())
		if _, _, ok := w.clients.Find(func(cp *ClientPair) bool { return cp.reqID == rid }); !ok {
			return rid
		}
	}
	return uint16(rand.Uint32())
}

func (w *Worker) armClientTimer(idx int, d time.Duration) TimerToken {
	gen := w.clients.Generation(idx)
	return w.timers.Arm(d, func() {
		w.timerFires <- timerFireEvent{idx: idx, gen: gen}
	})
}

// sendRequest implements send_request: assemble the request chain, allocate
// and register a client pair, arm its timer, and transmit only the head
// buffer (the remainder follows once the ACK for a multi-packet request
// arrives, or never, for a single-packet one).
func (w *Worker) sendRequest(iov [][]byte, reqCtx RequestContext) error {
	if reqCtx.Destination == nil {
		return fmt.Errorf("r2p2: send_request: %w", ErrNoDestination)
	}
	if err := w.transport.PrepareToSend(reqCtx.Destination); err != nil {
		return fmt.Errorf("r2p2: send_request: %w: %v", ErrPrepareToSend, err)
	}

	rid := w.nextRID()
	msg, err := AssembleOutbound(w.buffers, iov, MsgRequest, reqCtx.Policy, rid, w.cfg.MinPayloadSize, w.cfg.PayloadSize)
	if err != nil {
		return fmt.Errorf("r2p2: send_request: assemble: %w", err)
	}
	msg.Sender = reqCtx.Destination
	msg.ReqID = rid

	idx, cp, err := w.clients.Alloc()
	if err != nil {
		w.buffers.PutChain(msg.Head)
		w.metrics.PoolExhausted("client_pair")
		logger.Warn("client pair pool exhausted",
			logger.WorkerID(w.id), logger.PoolClass("client_pair"),
			logger.PoolInUse(w.clients.Len()), logger.PoolCapacity(w.clients.Capacity()))
		return fmt.Errorf("r2p2: send_request: %w", err)
	}

	state := StateWResponse
	timeout := w.cfg.RequestTimeout
	if msg.Head != msg.Tail {
		state = StateWAck
		timeout = w.cfg.AckTimeout
	}

	*cp = ClientPair{
		reqID:     rid,
		peer:      reqCtx.Destination.String(),
		state:     state,
		request:   msg,
		ctx:       reqCtx,
		startedAt: time.Now(),
	}
	cp.timer = w.armClientTimer(idx, timeout)

	if err := w.transport.SendPacket(msg.Head, reqCtx.Destination); err != nil {
		w.timers.Disarm(cp.timer)
		w.clients.Free(idx)
		w.buffers.PutChain(msg.Head)
		return fmt.Errorf("r2p2: send_request: %w", err)
	}

	if ts, ok := w.timestamper.Timestamp(); ok {
		cp.txTimestamp = ts
		cp.hasTxTimestamp = true
	}

	w.metrics.RequestSent()
	logger.Debug("request sent", logger.WorkerID(w.id), logger.ReqID(uint32(rid)),
		logger.Peer(cp.peer), logger.ClientState(state.String()), logger.RegistrySize(w.clients.Len()))
	return nil
}

// sendResponse implements send_response: assemble the response chain,
// transmit it in full to the request's sender, notify the router, and free
// the server pair.
func (w *Worker) sendResponse(handle *ServerHandle, iov [][]byte) error {
	if handle == nil || handle.worker != w {
		return fmt.Errorf("r2p2: send_response: %w", ErrUnknownHandle)
	}
	sp, ok := w.servers.Get(handle.slot)
	if !ok {
		return fmt.Errorf("r2p2: send_response: %w", ErrUnknownHandle)
	}

	msg, err := AssembleOutbound(w.buffers, iov, MsgResponse, PolicyFixedRoute, sp.reqID, w.cfg.MinPayloadSize, w.cfg.PayloadSize)
	if err != nil {
		return fmt.Errorf("r2p2: send_response: assemble: %w", err)
	}
	msg.Sender = sp.sender

	if err := sendChain(w.transport, msg.Head, sp.sender); err != nil {
		w.buffers.PutChain(msg.Head)
		return fmt.Errorf("r2p2: send_response: %w", err)
	}

	w.notifier.RouterNotify(sp.peer, sp.reqID, sp.policy)
	w.buffers.PutChain(msg.Head)
	w.buffers.PutChain(sp.request.Head)
	w.servers.Free(handle.slot)
	w.metrics.ResponseSent()
	logger.Debug("response sent", logger.WorkerID(w.id), logger.ReqID(uint32(sp.reqID)),
		logger.Peer(sp.peer), logger.ServerState("done"), logger.DurationMs(logger.Duration(sp.startedAt)))
	return nil
}

func (w *Worker) sendAck(rid uint16, dest *net.UDPAddr) {
	msg, err := AssembleOutbound(w.buffers, [][]byte{[]byte("ACK")}, MsgAck, PolicyFixedRoute, rid, w.cfg.MinPayloadSize, w.cfg.PayloadSize)
	if err != nil {
		w.metrics.PoolExhausted("buffer")
		return
	}
	if err := w.transport.SendPacket(msg.Head, dest); err != nil {
		logger.Warn("failed to send ack", logger.WorkerID(w.id), logger.ReqID(uint32(rid)), logger.Err(err))
	}
	w.buffers.PutChain(msg.Head)
}

// recvRespDone implements recv_resp_done: release a ClientPair the
// application is done reading the response iovec from. Called only via the
// dones channel, so it runs on the worker's own goroutine like every other
// state mutation.
func (w *Worker) recvRespDone(handle *ClientHandle) error {
	if handle == nil || handle.worker != w {
		return fmt.Errorf("r2p2: recv_resp_done: %w", ErrUnknownHandle)
	}
	if w.clients.Generation(handle.slot) != handle.gen {
		return fmt.Errorf("r2p2: recv_resp_done: %w", ErrUnknownHandle)
	}
	cp, ok := w.clients.Get(handle.slot)
	if !ok || !cp.delivered {
		return fmt.Errorf("r2p2: recv_resp_done: %w", ErrUnknownHandle)
	}
	if cp.reply != nil {
		w.buffers.PutChain(cp.reply.Head)
	}
	w.buffers.PutChain(cp.request.Head)
	w.clients.Free(handle.slot)
	return nil
}
