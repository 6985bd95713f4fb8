package r2p2

import "time"

// TimerToken is returned by Timer.Arm and passed back to Timer.Disarm. The
// standard library's *time.Timer already satisfies this via its Stop
// method, which is what the production Timer implementation returns.
type TimerToken interface {
	Stop() bool
}

// Timer is the engine's collaborator for scheduling the single timeout a
// client pair may have armed at once (AckTimeout while waiting for the
// peer's ACK, or RequestTimeout while waiting for its response).
type Timer interface {
	Arm(d time.Duration, fire func()) TimerToken
	Disarm(tok TimerToken)
}

// realTimer schedules fire functions on the Go runtime timer heap. Because
// the fire callback runs on its own goroutine, every production caller
// wraps fire in a channel send back into the owning worker's event loop
// rather than touching worker state directly, preserving the
// single-goroutine-per-worker invariant.
type realTimer struct{}

func (realTimer) Arm(d time.Duration, fire func()) TimerToken {
	return time.AfterFunc(d, fire)
}

func (realTimer) Disarm(tok TimerToken) {
	if tok != nil {
		tok.Stop()
	}
}
