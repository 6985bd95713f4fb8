package r2p2

import "encoding/binary"

// HeaderSize is the fixed, word-aligned wire header size in bytes. Every
// packet, ACK included, carries exactly this many header bytes ahead of its
// payload.
const HeaderSize = 8

// Magic identifies a byte sequence as an R2P2 packet. Anything else is
// dropped without a response, per the header codec's hard-drop rule.
const Magic uint8 = 0xB2

// MaxPacketsPerMessage is the largest total packet count a message may
// announce; p_order is one byte wide on the first packet.
const MaxPacketsPerMessage = 255

// MsgType is the upper nibble of the type_policy byte.
type MsgType uint8

const (
	MsgRequest  MsgType = 0x1
	MsgResponse MsgType = 0x2
	MsgAck      MsgType = 0x3
	// 0x0 and 0x4-0xF are reserved for future message types.
)

func (t MsgType) String() string {
	switch t {
	case MsgRequest:
		return "REQUEST"
	case MsgResponse:
		return "RESPONSE"
	case MsgAck:
		return "ACK"
	default:
		return "RESERVED"
	}
}

// Policy is the lower nibble of the type_policy byte. The engine only
// implements fixed routing; other nibble values are reserved for routing
// schemes this engine never interprets.
type Policy uint8

const (
	PolicyFixedRoute Policy = 0x0
)

func (p Policy) String() string {
	switch p {
	case PolicyFixedRoute:
		return "fixed_route"
	default:
		return "reserved"
	}
}

// Flag bits in the header's flags byte.
const (
	FlagFirst uint8 = 1 << 0 // F_FLAG: this is the first packet of the message
	FlagLast  uint8 = 1 << 1 // L_FLAG: this is the last packet of the message
)

// Header is the decoded form of the 8-byte wire header.
type Header struct {
	Type   MsgType
	Policy Policy
	Flags  uint8
	RID    uint16
	POrder uint8 // total packet count on the first packet, else 1-based sequence number
}

// IsFirst reports whether this packet opens a message.
func (h Header) IsFirst() bool { return h.Flags&FlagFirst != 0 }

// IsLast reports whether this packet closes a message.
func (h Header) IsLast() bool { return h.Flags&FlagLast != 0 }

// IsResponse reports whether this packet belongs to the client-facing half
// of a conversation (RESPONSE or ACK), as opposed to a REQUEST.
func (h Header) IsResponse() bool { return h.Type == MsgResponse || h.Type == MsgAck }

// EncodeHeader writes h into the first HeaderSize bytes of buf. buf must be
// at least HeaderSize bytes long.
func EncodeHeader(buf []byte, h *Header) {
	buf[0] = Magic
	buf[1] = HeaderSize
	buf[2] = (uint8(h.Type) << 4) | (uint8(h.Policy) & 0x0F)
	buf[3] = h.Flags
	binary.LittleEndian.PutUint16(buf[4:6], h.RID)
	buf[6] = h.POrder
	buf[7] = 0 // reserved, kept zero for word alignment
}

// DecodeHeader parses the first HeaderSize bytes of buf. A byte count below
// HeaderSize or a mismatched magic byte is a hard drop, per the protocol's
// malformed-packet rule.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrMalformedPacket
	}
	if buf[0] != Magic {
		return Header{}, ErrUnknownMagic
	}
	return Header{
		Type:   MsgType(buf[2] >> 4),
		Policy: Policy(buf[2] & 0x0F),
		Flags:  buf[3],
		RID:    binary.LittleEndian.Uint16(buf[4:6]),
		POrder: buf[6],
	}, nil
}
