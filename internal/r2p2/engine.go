package r2p2

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/r2p2/r2p2d/internal/logger"
)

// EngineConfig is the fully-resolved configuration an Engine is built from.
// It mirrors internal/config.Config's protocol and pool sections rather
// than importing that package directly, so internal/r2p2 has no dependency
// on the CLI-facing configuration format.
type EngineConfig struct {
	Listen         string
	Workers        int
	PayloadSize    int
	MinPayloadSize int
	ClientPairs    int
	ServerPairs    int
	BufferSlots    int
	RequestTimeout time.Duration
	AckTimeout     time.Duration
}

// Engine owns a single UDP socket and fans inbound packets out to a fixed
// set of shared-nothing Workers, each running on its own goroutine. A
// packet is routed to a worker by hashing its request id, so every
// fragment of a given message (and that message's eventual response)
// always lands on the same worker without any cross-worker coordination.
type Engine struct {
	cfg       EngineConfig
	conn      *net.UDPConn
	transport Transport
	workers   []*Worker
	rrCounter atomic.Uint64
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewEngine binds the configured UDP address and builds one Worker per
// configured shard (or one per CPU, if Workers is zero).
func NewEngine(cfg EngineConfig, reg prometheus.Registerer, recvCB ReceiveFunc) (*Engine, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("r2p2: resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("r2p2: listen on %s: %w", cfg.Listen, err)
	}

	numWorkers := cfg.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	transport := newUDPTransport(conn)

	var notifier RouterNotifier = noopNotifier{}
	if reg != nil {
		notifier = NewPrometheusNotifier(reg)
	}

	e := &Engine{cfg: cfg, conn: conn, transport: transport}
	for i := 0; i < numWorkers; i++ {
		id := xid.New().String()
		var metrics *Metrics
		if reg != nil {
			metrics = NewMetrics(reg, id)
		}
		w := NewWorker(WorkerParams{
			ID: id,
			Config: WorkerConfig{
				PayloadSize:    cfg.PayloadSize,
				MinPayloadSize: cfg.MinPayloadSize,
				RequestTimeout: cfg.RequestTimeout,
				AckTimeout:     cfg.AckTimeout,
			},
			Buffers:   NewBufferPool(cfg.BufferSlots, cfg.PayloadSize),
			Clients:   NewRegistry[ClientPair](cfg.ClientPairs),
			Servers:   NewRegistry[ServerPair](cfg.ServerPairs),
			Transport: transport,
			Timer:     realTimer{},
			Metrics:   metrics,
			RecvCB:    recvCB,
			Notifier:  notifier,
		})
		logger.Info("worker started", logger.WorkerID(id), logger.Shard(i), logger.LocalPort(addr.Port))
		e.workers = append(e.workers, w)
	}
	return e, nil
}

// NumWorkers returns the number of shards the engine was built with.
func (e *Engine) NumWorkers() int { return len(e.workers) }

// Worker returns the i-th worker shard, for callers that want to pin
// traffic for a given peer to a specific worker instead of using the
// engine's default round-robin SendRequest.
func (e *Engine) Worker(i int) *Worker { return e.workers[i] }

// SendRequest implements the engine's external send_request entry point,
// picking a worker shard by round robin.
func (e *Engine) SendRequest(iov [][]byte, reqCtx RequestContext) error {
	idx := e.rrCounter.Add(1) % uint64(len(e.workers))
	return e.workers[idx].SendRequest(iov, reqCtx)
}

// routeToWorker picks the shard that owns a packet's request id. Any packet
// too short to contain a rid field is routed to shard zero, which will
// reject it as malformed.
func (e *Engine) routeToWorker(data []byte) *Worker {
	if len(data) < HeaderSize {
		return e.workers[0]
	}
	rid := binary.LittleEndian.Uint16(data[4:6])
	return e.workers[int(rid)%len(e.workers)]
}

// Serve starts every worker's run loop and then reads inbound datagrams
// until the socket is closed by Shutdown. A canceled ctx stops the workers
// but is only noticed by the read loop once a read returns an error.
func (e *Engine) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	for _, w := range e.workers {
		e.wg.Add(1)
		go func(w *Worker) {
			defer e.wg.Done()
			w.Run(runCtx)
		}(w)
	}

	buf := make([]byte, HeaderSize+e.cfg.PayloadSize)
	for {
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-runCtx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("udp read error", logger.Err(err))
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		e.routeToWorker(data).Deliver(data, addr)
	}
}

// Shutdown closes the listening socket and cancels every worker's run loop,
// waiting up to ctx's deadline for them to drain.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	_ = e.conn.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
