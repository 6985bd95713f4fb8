package r2p2

import "net"

// Message is a forward-linked chain of buffers sharing one request id,
// together with the peer it was sent to or received from.
type Message struct {
	Head   *Buffer
	Tail   *Buffer
	Sender *net.UDPAddr
	ReqID  uint16
}

// AssembleOutbound copies iov into a freshly allocated chain of pool
// buffers, splitting it into packets per the wire framing rules: a
// single-packet message fits entirely within payloadSize; a multi-packet
// message caps its first buffer at minPayloadSize (so the receiver gets the
// total packet count early, before committing to a full-size reassembly
// buffer) and every following buffer at payloadSize. The head buffer's
// p_order is overwritten with the total packet count and F_FLAG; the tail
// buffer gets L_FLAG. On pool exhaustion mid-build, every buffer allocated
// so far is freed before the error is returned.
func AssembleOutbound(pool *BufferPool, iov [][]byte, msgType MsgType, policy Policy, rid uint16, minPayloadSize, payloadSize int) (*Message, error) {
	total := 0
	for _, frag := range iov {
		total += len(frag)
	}
	singlePacket := total <= payloadSize

	var head, tail *Buffer
	packetIndex := uint8(0)
	fragIdx, fragOff := 0, 0
	first := true

	for {
		capacity := payloadSize
		if first && !singlePacket {
			capacity = minPayloadSize
		}

		buf, err := pool.Get()
		if err != nil {
			pool.PutChain(head)
			return nil, err
		}

		dst := buf.data[HeaderSize : HeaderSize+capacity]
		n := 0
		for n < capacity && fragIdx < len(iov) {
			src := iov[fragIdx][fragOff:]
			if len(src) == 0 {
				fragIdx++
				fragOff = 0
				continue
			}
			c := len(src)
			if c > capacity-n {
				c = capacity - n
			}
			copy(dst[n:n+c], src[:c])
			n += c
			fragOff += c
			if fragOff >= len(iov[fragIdx]) {
				fragIdx++
				fragOff = 0
			}
		}
		buf.SetPayloadSize(n)

		packetIndex++
		EncodeHeader(buf.Header(), &Header{
			Type:   msgType,
			Policy: policy,
			RID:    rid,
			POrder: packetIndex - 1, // subsequent-packet sequence number; head is patched below
		})

		if head == nil {
			head = buf
		} else {
			tail.SetNext(buf)
		}
		tail = buf
		first = false

		if fragIdx >= len(iov) {
			break
		}
	}

	headHdr, _ := DecodeHeader(head.Header())
	headHdr.Flags |= FlagFirst
	if head == tail {
		headHdr.Flags |= FlagLast
		headHdr.POrder = 1
	} else {
		headHdr.POrder = packetIndex
	}
	EncodeHeader(head.Header(), &headHdr)

	if head != tail {
		tailHdr, _ := DecodeHeader(tail.Header())
		tailHdr.Flags |= FlagLast
		EncodeHeader(tail.Header(), &tailHdr)
	}

	return &Message{Head: head, Tail: tail, ReqID: rid}, nil
}

// ReassembleIovec walks a fully received buffer chain and returns its
// payload slices in order, ready for zero-copy delivery to a receive
// callback. It returns ErrTooManyPackets if the chain somehow exceeds the
// wire's 255-packet limit, which should be unreachable given POrder is a
// single byte.
func ReassembleIovec(head *Buffer) ([][]byte, error) {
	iov := make([][]byte, 0, 4)
	count := 0
	for b := head; b != nil; b = b.Next() {
		count++
		if count > MaxPacketsPerMessage {
			return nil, ErrTooManyPackets
		}
		iov = append(iov, b.Payload())
	}
	return iov, nil
}
