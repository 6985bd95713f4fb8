package r2p2

import "time"

// Timestamper is the optional collaborator behind extract_tx_timestamp: a
// worker asks it for a timestamp immediately after handing a packet to the
// transport. The default implementation never has one to offer; a
// platform-specific implementation (see timestamp_linux.go) can report a
// software receive/transmit timestamp where the OS exposes one.
type Timestamper interface {
	Timestamp() (time.Time, bool)
}

type noopTimestamper struct{}

func (noopTimestamper) Timestamp() (time.Time, bool) { return time.Time{}, false }
