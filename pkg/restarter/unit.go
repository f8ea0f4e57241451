// Package restarter implements the per-instance Unit state machine: it
// forks and tracks the methods of one service instance, times their
// execution, and reacts to process lifecycle events and administrative
// requests. It never touches the Graph Engine's state directly; the two
// communicate only through notes posted on the bus owned by the caller
// (normally pkg/eventloop).
package restarter

import (
	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/timerset"
)

// UnitType selects how a unit's start method is interpreted.
type UnitType string

const (
	TypeSimple  UnitType = "simple"
	TypeOneshot UnitType = "oneshot"
	TypeForks   UnitType = "forks"
	TypeGroup   UnitType = "group"
)

// UnitState is the full state enum, unabbreviated.
type UnitState int

const (
	Uninitialised UnitState = iota
	Offline
	PreStart
	Start
	PostStart
	Online
	Stop
	StopTerm
	StopKill
	PostStop
	Maintenance
	None
)

func (s UnitState) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Offline:
		return "offline"
	case PreStart:
		return "prestart"
	case Start:
		return "start"
	case PostStart:
		return "poststart"
	case Online:
		return "online"
	case Stop:
		return "stop"
	case StopTerm:
		return "stop_term"
	case StopKill:
		return "stop_kill"
	case PostStop:
		return "post_stop"
	case Maintenance:
		return "maintenance"
	case None:
		return "none"
	default:
		return "unknown"
	}
}

// MethodKind indexes a Unit's method table.
type MethodKind int

const (
	MethodPreStart MethodKind = iota
	MethodStart
	MethodPostStart
	MethodStop
	MethodPostStop
	methodKindCount
)

// Method is one command line the restarter forks for a given method kind.
// "forks"-type units use it differently: their start method really means
// "go find the daemon that already forked itself."
type Method struct {
	Path string
	Args []string
	Env  []string
}

// Unit is the restarter's view of a single instance. Fields are only
// ever touched by the event loop goroutine; no mutex guards them.
type Unit struct {
	Path domain.ServicePath
	Type UnitType

	Methods [methodKindCount]*Method

	State  UnitState
	Target UnitState

	MainPID      int
	SecondaryPID int
	PIDs         map[int]struct{}

	MethodTimer  timerset.TimerID
	RestartTimer timerset.TimerID

	FailureCounts [methodKindCount]int

	// pending holds the in-flight fork handshake for the method currently
	// running as MainPID or SecondaryPID, if any. nil once resolved.
	pending *pendingMethod
}

// NewUnit constructs a Unit in its initial Uninitialised state with an
// empty PID set, matching unit_add's contract (idempotent creation is
// the caller's -- Core's -- responsibility via a path-keyed map).
func NewUnit(path domain.ServicePath, unitType UnitType) *Unit {
	return &Unit{
		Path:  path,
		Type:  unitType,
		State: Uninitialised,
		PIDs:  make(map[int]struct{}),
	}
}

func (u *Unit) addPID(pid int) {
	if pid <= 0 {
		return
	}
	u.PIDs[pid] = struct{}{}
}

func (u *Unit) removePID(pid int) {
	delete(u.PIDs, pid)
}

func (u *Unit) isStopping() bool {
	switch u.State {
	case Stop, StopTerm, StopKill, PostStop:
		return true
	default:
		return false
	}
}
