package r2p2

import (
	"net"
	"time"
)

// ServerPair tracks one inbound request from its first packet through
// send_response. delivered marks the point where reassembly completed and
// the pair stopped being a target for continuation-packet routing, even
// though it stays allocated until the application calls SendResponse.
type ServerPair struct {
	reqID           uint16
	peer            string
	sender          *net.UDPAddr
	policy          Policy
	request         *Message
	requestExpected int
	requestReceived int
	delivered       bool
	startedAt       time.Time
}

// state returns the ServerPair's coarse lifecycle stage, for logging.
func (sp *ServerPair) state() string {
	if sp.delivered {
		return "delivered"
	}
	return "assembling"
}

// ServerHandle is the opaque handle a receive callback gets, to be passed
// back to Worker.SendResponse. It outlives the callback that received it,
// but not a second call to SendResponse for the same handle.
type ServerHandle struct {
	worker *Worker
	slot   int
}

// Worker returns the worker that owns this handle, so a receive callback
// running outside the r2p2 package can route SendResponse to the right
// shard without threading its own worker reference through.
func (h *ServerHandle) Worker() *Worker { return h.worker }

// ReceiveFunc is invoked once per fully reassembled request, with the
// request's payload presented as an ordered, zero-copy iovec.
type ReceiveFunc func(handle *ServerHandle, iov [][]byte)
