//go:build linux

package r2p2

import "time"

// softwareTimestamper reports the wall-clock time a packet was handled on
// the worker's goroutine. It is a deliberately simplified stand-in for the
// original design's SO_TIMESTAMPING-based hardware/kernel receive
// timestamp: getting a real NIC timestamp means reaching past net.UDPConn
// into raw socket options, which is out of scope for a portable engine.
// Swap this for a cgo or golang.org/x/sys/unix based implementation if a
// deployment needs sub-millisecond accuracy.
type softwareTimestamper struct{}

func newPlatformTimestamper() Timestamper { return softwareTimestamper{} }

func (softwareTimestamper) Timestamp() (time.Time, bool) { return time.Now(), true }
