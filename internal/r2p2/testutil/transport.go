// Package testutil provides in-memory fakes for exercising the r2p2 engine
// without a real socket or wall-clock timers.
package testutil

import (
	"net"
	"sync"

	"github.com/r2p2/r2p2d/internal/r2p2"
)

// SentPacket records one packet handed to a FakeTransport.
type SentPacket struct {
	Header  r2p2.Header
	Payload []byte
	Dest    *net.UDPAddr
}

// FakeTransport is an in-memory r2p2.Transport: it never touches a socket,
// just records what would have been sent so tests can assert on it.
type FakeTransport struct {
	mu          sync.Mutex
	sent        []SentPacket
	failPrepare bool
	failSend    bool
}

// NewFakeTransport returns a FakeTransport with no injected failures.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// FailPrepare makes every subsequent PrepareToSend call fail.
func (t *FakeTransport) FailPrepare(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failPrepare = fail
}

// FailSend makes every subsequent SendPacket call fail.
func (t *FakeTransport) FailSend(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failSend = fail
}

// PrepareToSend implements r2p2.Transport.
func (t *FakeTransport) PrepareToSend(dest *net.UDPAddr) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failPrepare {
		return r2p2.ErrPrepareToSend
	}
	return nil
}

// SendPacket implements r2p2.Transport, recording the packet instead of
// transmitting it.
func (t *FakeTransport) SendPacket(b *r2p2.Buffer, dest *net.UDPAddr) error {
	t.mu.Lock()
	fail := t.failSend
	t.mu.Unlock()
	if fail {
		return r2p2.ErrPrepareToSend
	}

	hdr, err := r2p2.DecodeHeader(b.Header())
	if err != nil {
		return err
	}
	payload := append([]byte(nil), b.Payload()...)

	t.mu.Lock()
	t.sent = append(t.sent, SentPacket{Header: hdr, Payload: payload, Dest: dest})
	t.mu.Unlock()
	return nil
}

// Sent returns a snapshot of every packet recorded so far, in send order.
func (t *FakeTransport) Sent() []SentPacket {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SentPacket, len(t.sent))
	copy(out, t.sent)
	return out
}

// Reset clears recorded packets and failure injection.
func (t *FakeTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
	t.failPrepare = false
	t.failSend = false
}
