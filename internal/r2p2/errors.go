package r2p2

import "errors"

// Sentinel errors returned by the engine's state machines. Callers compare
// against these with errors.Is; wrapped forms add the packet or pair context.
var (
	ErrMalformedPacket = errors.New("r2p2: malformed packet")
	ErrUnknownMagic    = errors.New("r2p2: unrecognized magic byte")
	ErrPoolExhausted   = errors.New("r2p2: pool exhausted")
	ErrOutOfOrder      = errors.New("r2p2: out-of-order fragment")
	ErrSizeMismatch    = errors.New("r2p2: received packet count does not match announced total")
	ErrPrepareToSend   = errors.New("r2p2: prepare to send failed")
	ErrTooManyPackets  = errors.New("r2p2: message exceeds the 255-packet wire limit")
	ErrUnknownHandle   = errors.New("r2p2: handle no longer valid")
	ErrNoDestination   = errors.New("r2p2: request context has no destination")
)
