package r2p2

import (
	"net"
	"time"
)

// fakeTransport is an in-memory Transport for white-box tests: it never
// touches a socket, just records what would have been sent.
type fakeTransport struct {
	sent        []fakeSent
	failPrepare bool
	failSend    bool
}

type fakeSent struct {
	hdr     Header
	payload []byte
	dest    *net.UDPAddr
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (t *fakeTransport) PrepareToSend(dest *net.UDPAddr) error {
	if t.failPrepare {
		return ErrPrepareToSend
	}
	return nil
}

func (t *fakeTransport) SendPacket(b *Buffer, dest *net.UDPAddr) error {
	if t.failSend {
		return ErrPrepareToSend
	}
	hdr, err := DecodeHeader(b.Header())
	if err != nil {
		return err
	}
	t.sent = append(t.sent, fakeSent{
		hdr:     hdr,
		payload: append([]byte(nil), b.Payload()...),
		dest:    dest,
	})
	return nil
}

// fakeTimerEntry is one Arm call recorded by fakeTimer.
type fakeTimerEntry struct {
	fire func()
	live bool
}

func (e *fakeTimerEntry) Stop() bool {
	if !e.live {
		return false
	}
	e.live = false
	return true
}

// fakeTimer is a deterministic Timer: nothing fires until the test calls
// fireLast or fireAll.
type fakeTimer struct {
	armed []*fakeTimerEntry
}

func newFakeTimer() *fakeTimer { return &fakeTimer{} }

func (t *fakeTimer) Arm(_ time.Duration, fire func()) TimerToken {
	e := &fakeTimerEntry{fire: fire, live: true}
	t.armed = append(t.armed, e)
	return e
}

func (t *fakeTimer) Disarm(tok TimerToken) {
	if tok != nil {
		tok.Stop()
	}
}

// fireLast fires the most recently armed, still-live timer and returns
// whether one was found.
func (t *fakeTimer) fireLast() bool {
	for i := len(t.armed) - 1; i >= 0; i-- {
		if t.armed[i].live {
			t.armed[i].live = false
			t.armed[i].fire()
			return true
		}
	}
	return false
}

func mustAddr(s string) *net.UDPAddr {
	addr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		panic(err)
	}
	return addr
}

// newTestWorker builds a Worker wired to fakeTransport/fakeTimer with small
// pool sizes, suitable for direct (non-goroutine) calls to its unexported
// methods from a test in this package.
func newTestWorker(transport *fakeTransport, timer *fakeTimer, recvCB ReceiveFunc) *Worker {
	return NewWorker(WorkerParams{
		ID: "test-worker",
		Config: WorkerConfig{
			PayloadSize:    256,
			MinPayloadSize: 64,
			RequestTimeout: time.Second,
			AckTimeout:     time.Second,
		},
		Buffers:   NewBufferPool(64, 256),
		Clients:   NewRegistry[ClientPair](16),
		Servers:   NewRegistry[ServerPair](16),
		Transport: transport,
		Timer:     timer,
		Metrics:   NullMetrics(),
		RecvCB:    recvCB,
		Notifier:  noopNotifier{},
	})
}

// drainTimerFires processes every timer-fire event currently queued on w,
// as Run would, without starting a goroutine.
func drainTimerFires(w *Worker) {
	for {
		select {
		case ev := <-w.timerFires:
			w.onClientTimerFire(ev)
		default:
			return
		}
	}
}
