// Package lifecycle tracks where the host process is in its run: collecting records,
// run complete, or shutting down. Phases only move forward.
package lifecycle

import "sync/atomic"

// Phase is a host lifecycle phase.
type Phase int32

const (
	Collecting Phase = iota
	Complete
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Collecting:
		return "collecting"
	case Complete:
		return "complete"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// Advance moves to p unless the host is already at or past it. Returns true when the
// phase changed.
func Advance(p Phase) bool {
	for {
		cur := phase.Load()
		if Phase(cur) >= p {
			return false
		}
		if phase.CompareAndSwap(cur, int32(p)) {
			return true
		}
	}
}

// Current returns the current phase.
func Current() Phase {
	return Phase(phase.Load())
}

// IsShuttingDown returns true if the host is draining and should not accept new records.
// Health handler returns 503 with status shutting-down while true.
func IsShuttingDown() bool {
	return Current() == ShuttingDown
}

// Reset returns to Collecting. For tests only.
func Reset() {
	phase.Store(int32(Collecting))
}
