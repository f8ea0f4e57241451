// Package processtracker implements a platform-neutral contract: a
// subscription object accepting Watch/Disregard that produces Child and
// Exit events for watched PIDs, in FIFO order per PID, with watched
// children auto-enrolled and surfaced before their own Exit.
package processtracker

// EventKind discriminates the two event shapes the tracker produces.
type EventKind int

const (
	EventChild EventKind = iota
	EventExit
)

// ExitFlag encodes whether an Exit event was a normal or abnormal
// termination.
type ExitFlag int

const (
	ExitNormal ExitFlag = iota
	ExitAbnormal
)

// Event is a single process-lifecycle event.
type Event struct {
	Kind EventKind

	// Child fields.
	ParentPID int
	PID       int

	// Exit fields (PID reuses the field above).
	ExitFlag ExitFlag
	ExitCode int
}

// Tracker is the platform-neutral process-event subscription. The core
// (Restarter, event loop) depends only on this contract; backend
// selection (kqueue on BSD-likes, the process connector on Linux, a
// portable polling fallback) is a deployment concern.
type Tracker interface {
	// Watch begins tracking pid. Children later forked by a watched
	// parent are auto-enrolled and surface as Child events before any
	// Exit event involving them.
	Watch(pid int) error

	// Disregard stops tracking pid. Idempotent.
	Disregard(pid int)

	// Events returns the channel Child/Exit events are delivered on, in
	// FIFO order per PID.
	Events() <-chan Event

	// Close stops the tracker's background polling/listening.
	Close() error
}
