package r2p2

import (
	"net"
	"time"
)

// ClientState is the two-state machine a ClientPair moves through.
type ClientState uint8

const (
	// StateWAck is the state a multi-packet request sits in after its head
	// buffer has been sent, waiting for the server's ACK before the
	// remainder of the chain goes out.
	StateWAck ClientState = iota
	// StateWResponse is the state a request sits in once its full chain
	// has been transmitted (immediately, for single-packet requests; after
	// the ACK, for multi-packet ones), waiting for the response.
	StateWResponse
)

func (s ClientState) String() string {
	switch s {
	case StateWAck:
		return "W_ACK"
	case StateWResponse:
		return "W_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// RequestCallbacks are invoked exactly once across a ClientPair's lifetime:
// success on a fully reassembled response, error on a protocol violation,
// timeout if neither happens before the armed timer fires. OnSuccess
// receives the handle the CP is still allocated under; the pair is not
// freed until the application calls Worker.RecvRespDone(handle).
type RequestCallbacks struct {
	OnSuccess func(handle *ClientHandle, iov [][]byte)
	OnError   func(code int)
	OnTimeout func()
}

// RequestContext carries everything SendRequest needs beyond the payload
// itself.
type RequestContext struct {
	Destination *net.UDPAddr
	Policy      Policy
	Callbacks   RequestCallbacks
	Arg         any
}

// ClientPair tracks one outbound request from send_request through whichever
// terminal event frees it. It remains allocated past a successful delivery
// until the application calls Worker.RecvRespDone, so a late duplicate
// fragment arriving in that window has somewhere to be recognized and
// dropped instead of matching a reused slot.
type ClientPair struct {
	reqID          uint16
	peer           string
	state          ClientState
	request        *Message
	reply          *Message
	replyExpected  int
	replyReceived  int
	ctx            RequestContext
	timer          TimerToken
	startedAt      time.Time
	delivered      bool
	txTimestamp    time.Time
	hasTxTimestamp bool
	rxTimestamp    time.Time
	hasRxTimestamp bool
}

// ClientHandle is the opaque handle a success callback gets, to be passed
// back to Worker.RecvRespDone once the application is done with the
// response iovec. It outlives the callback that received it, but not a
// call to RecvRespDone for the same handle.
type ClientHandle struct {
	worker *Worker
	slot   int
	gen    int
}

// Worker returns the worker that owns this handle.
func (h *ClientHandle) Worker() *Worker { return h.worker }

// TxTimestamp reports the optional transmit timestamp captured when the
// request was handed to the transport, if the platform's Timestamper
// offered one.
func (h *ClientHandle) TxTimestamp() (time.Time, bool) {
	if h.worker.clients.Generation(h.slot) != h.gen {
		return time.Time{}, false
	}
	cp, ok := h.worker.clients.Get(h.slot)
	if !ok {
		return time.Time{}, false
	}
	return cp.txTimestamp, cp.hasTxTimestamp
}

// RxTimestamp reports the optional timestamp captured when the response
// finished reassembling, if the platform's Timestamper offered one.
func (h *ClientHandle) RxTimestamp() (time.Time, bool) {
	if h.worker.clients.Generation(h.slot) != h.gen {
		return time.Time{}, false
	}
	cp, ok := h.worker.clients.Get(h.slot)
	if !ok {
		return time.Time{}, false
	}
	return cp.rxTimestamp, cp.hasRxTimestamp
}
