package r2p2

import "net"

// Transport is the engine's collaborator for the network edge: everything
// above it deals in Buffers and never touches a socket directly.
type Transport interface {
	// PrepareToSend gives the transport a chance to fail fast before any
	// buffer is built for dest, e.g. if the destination is unroutable.
	PrepareToSend(dest *net.UDPAddr) error
	// SendPacket transmits exactly one buffer's header+payload as a single
	// datagram. Callers that need a whole chain sent call this once per
	// buffer in the chain (see sendChain).
	SendPacket(b *Buffer, dest *net.UDPAddr) error
}

// sendChain transmits every buffer in a chain, in order, stopping at the
// first error.
func sendChain(t Transport, head *Buffer, dest *net.UDPAddr) error {
	for b := head; b != nil; b = b.Next() {
		if err := t.SendPacket(b, dest); err != nil {
			return err
		}
	}
	return nil
}

// udpTransport is the production Transport backed by a single bound
// net.UDPConn shared by every worker.
type udpTransport struct {
	conn *net.UDPConn
}

func newUDPTransport(conn *net.UDPConn) *udpTransport {
	return &udpTransport{conn: conn}
}

func (t *udpTransport) PrepareToSend(dest *net.UDPAddr) error {
	if dest == nil {
		return ErrNoDestination
	}
	return nil
}

func (t *udpTransport) SendPacket(b *Buffer, dest *net.UDPAddr) error {
	_, err := t.conn.WriteToUDP(b.data[:HeaderSize+b.payload], dest)
	return err
}
