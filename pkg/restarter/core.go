package restarter

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/errors"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notebus"
	"github.com/core-tools/hsu-svcmgr-go/pkg/process"
	"github.com/core-tools/hsu-svcmgr-go/pkg/processtracker"
	"github.com/core-tools/hsu-svcmgr-go/pkg/timerset"
)

const (
	defaultMethodTimeout = 2000 * time.Millisecond
	restartCooldown      = 5000 * time.Millisecond
	restartReentry       = 500 * time.Millisecond
	maxConsecutiveFails  = 5
)

// Core is the Restarter Core: the collection of Units for one supervisor
// process, plus the shared collaborators every Unit's transitions need.
// It is an explicit context object, constructed once at event-loop
// bootstrap, never a package global.
type Core struct {
	logger  logging.Logger
	bus     *notebus.Bus
	timers  *timerset.Set
	tracker processtracker.Tracker

	notifySocketPath string

	units    map[domain.ServicePath]*Unit
	pidOwner map[int]*Unit

	// exitEvents carries the outcome of directly-forked methods from the
	// one-shot wait goroutine Fork starts back onto the event-loop
	// thread: nothing may call HandleProcessEvent except that thread, so
	// the goroutine only ever sends here and never mutates Unit state
	// itself.
	exitEvents chan processtracker.Event

	// resourceSample is invoked after every successful fork or attach. It is wired
	// to nothing more than an observability hook today: this subsystem
	// defines no resource-limit policy, so the only thing a concrete
	// Core does with it is log.
	resourceSample func(u *Unit, pid int)

	// forker builds the execute-and-hold handshake for a method. It is
	// injectable, a command function rather than a direct exec.Cmd call,
	// so tests drive the state machine without spawning real processes.
	forker func(ctx context.Context, method *Method, id string, logger logging.Logger) (*process.Pending, error)

	// attacher locates an already-running "forks"-type daemon by the pid
	// file its Start method names, rather than forking one. Injectable
	// for the same reason forker is.
	attacher func(ctx context.Context, config process.PIDFileConfig, id string, logger logging.Logger) (*os.Process, io.ReadCloser, error)
}

// NewCore builds a Restarter Core. notifySocketPath is stamped into
// NOTIFY_SOCKET for every forked child's readiness protocol.
func NewCore(logger logging.Logger, bus *notebus.Bus, timers *timerset.Set, tracker processtracker.Tracker, notifySocketPath string) *Core {
	return &Core{
		logger:           logger,
		bus:              bus,
		timers:           timers,
		tracker:          tracker,
		notifySocketPath: notifySocketPath,
		units:            make(map[domain.ServicePath]*Unit),
		pidOwner:         make(map[int]*Unit),
		exitEvents:       make(chan processtracker.Event, 16),
		resourceSample:   func(u *Unit, pid int) { logger.Debugf("Resource sample, path: %s, pid: %d", u.Path, pid) },
		forker:           defaultForker,
		attacher:         defaultAttacher,
	}
}

// SetForker overrides how Core forks a method. Tests use this to inject
// a fake process.Pending instead of exec'ing a real binary.
func (c *Core) SetForker(f func(ctx context.Context, method *Method, id string, logger logging.Logger) (*process.Pending, error)) {
	c.forker = f
}

// SetAttacher overrides how Core attaches to an already-running
// "forks"-type daemon. Tests use this to inject a fake process instead
// of reading a real pid file.
func (c *Core) SetAttacher(f func(ctx context.Context, config process.PIDFileConfig, id string, logger logging.Logger) (*os.Process, io.ReadCloser, error)) {
	c.attacher = f
}

func defaultForker(ctx context.Context, method *Method, id string, logger logging.Logger) (*process.Pending, error) {
	execute := process.NewStdExecuteCmd(process.ExecutionConfig{
		ExecutablePath: method.Path,
		Args:           method.Args,
		Environment:    method.Env,
	}, id, logger)
	return process.Fork(ctx, execute)
}

func defaultAttacher(ctx context.Context, config process.PIDFileConfig, id string, logger logging.Logger) (*os.Process, io.ReadCloser, error) {
	return process.NewStdAttachCmd(config, id, logger)(ctx)
}

// ExitEvents returns the channel the event loop must select on alongside
// the process tracker's own Events() channel: directly-forked methods
// resolve here, attached ("forks"-type) daemons resolve via the tracker.
func (c *Core) ExitEvents() <-chan processtracker.Event {
	return c.exitEvents
}

// SetResourceSample overrides the post-fork resource sampling hook.
func (c *Core) SetResourceSample(f func(u *Unit, pid int)) {
	c.resourceSample = f
}

// UnitAdd is unit_add: idempotent creation, initial state Uninitialised,
// no tracked PIDs.
func (c *Core) UnitAdd(path domain.ServicePath, unitType UnitType) *Unit {
	if u, ok := c.units[path]; ok {
		return u
	}
	u := NewUnit(path, unitType)
	c.units[path] = u
	return u
}

// Lookup returns the Unit for path, if one has been added.
func (c *Core) Lookup(path domain.ServicePath) (*Unit, bool) {
	u, ok := c.units[path]
	return u, ok
}

// Units returns every registered Unit, for admin introspection via
// pkg/control's read-only HTTP surface. Order is unspecified.
func (c *Core) Units() []*Unit {
	units := make([]*Unit, 0, len(c.units))
	for _, u := range c.units {
		units = append(units, u)
	}
	return units
}

// UnitMsg is unit_msg: accept a request note from the graph.
func (c *Core) UnitMsg(u *Unit, note domain.Note) {
	if note.Kind != domain.NoteKindRestarterRequest {
		return
	}
	switch note.RestarterRequestSub() {
	case domain.RestarterRequestStart:
		if u.State == Uninitialised || u.State == Offline || u.State == Maintenance {
			u.Target = Online
			c.enterState(u, PreStart)
		}
	case domain.RestarterRequestStop:
		u.Target = Offline
		if u.State != Stop && u.State != StopTerm && u.State != StopKill && u.State != PostStop && u.State != Offline {
			c.enterState(u, Stop)
		}
	}
}

// UnitNotifyReady is unit_notify_ready: a Start-state readiness datagram
// cancels the method timer and advances to PostStart. Ignored elsewhere.
func (c *Core) UnitNotifyReady(u *Unit) {
	if u.State != Start {
		return
	}
	c.cancelMethodTimer(u)
	c.enterState(u, PostStart)
}

// UnitNotifyStatus is unit_notify_status: an opaque status annotation.
func (c *Core) UnitNotifyStatus(u *Unit, text string) {
	c.logger.Infof("Unit status, path: %s, status: %s", u.Path, text)
}

// OwnerOf resolves the Unit a tracked PID belongs to, for the event
// loop's readiness-socket peer-credential routing and for dispatching
// process tracker events without exposing the PID map.
func (c *Core) OwnerOf(pid int) (*Unit, bool) {
	u, ok := c.pidOwner[pid]
	return u, ok
}

func (c *Core) cancelMethodTimer(u *Unit) {
	if u.MethodTimer != 0 {
		c.timers.Del(u.MethodTimer)
		u.MethodTimer = 0
	}
}

func (c *Core) cancelRestartTimer(u *Unit) {
	if u.RestartTimer != 0 {
		c.timers.Del(u.RestartTimer)
		u.RestartTimer = 0
	}
}

func (c *Core) armMethodTimer(u *Unit, delay time.Duration) {
	c.cancelMethodTimer(u)
	u.MethodTimer = c.timers.Add(delay, nil, func(interface{}) {
		c.onMethodTimeout(u)
	})
}

// armRestartTimer implements the two-phase restart back-off: a 5000 ms
// cooldown, then a 500 ms re-entry delay, before the unit actually
// re-enters target.
func (c *Core) armRestartTimer(u *Unit, target UnitState) {
	c.cancelRestartTimer(u)
	u.RestartTimer = c.timers.Add(restartCooldown, nil, func(interface{}) {
		u.RestartTimer = c.timers.Add(restartReentry, nil, func(interface{}) {
			u.RestartTimer = 0
			c.enterState(u, target)
		})
	})
}

// forkMethod runs the fork-and-hold handshake: the process is created
// stopped, enrolled with the tracker and the unit's PID set while still
// stopped, then released to actually run. secondary selects whether the
// resulting PID becomes MainPID or SecondaryPID.
func (c *Core) forkMethod(u *Unit, kind MethodKind, secondary bool) error {
	method := u.Methods[kind]
	if method == nil {
		return errors.NewValidationError("method not defined", nil).WithContext("path", u.Path.String()).WithContext("kind", kind)
	}

	withNotify := *method
	withNotify.Env = append(append([]string{}, method.Env...), "NOTIFY_SOCKET="+c.notifySocketPath)

	pending, err := c.forker(context.Background(), &withNotify, u.Path.String(), c.logger)
	if err != nil {
		return err
	}

	pid := pending.Process.Pid
	if err := c.tracker.Watch(pid); err != nil {
		_ = pending.Process.Kill()
		return err
	}
	u.addPID(pid)
	c.pidOwner[pid] = u
	if secondary {
		u.SecondaryPID = pid
	} else {
		u.MainPID = pid
	}
	u.pending = &pendingMethod{kind: kind, secondary: secondary, pending: pending}

	c.resourceSample(u, pid)

	if err := pending.Release(); err != nil {
		c.logger.Warnf("Failed to release held process, path: %s, pid: %d, error: %v", u.Path, pid, err)
	}

	go c.awaitExit(pid, pending)

	return nil
}

// attachMethod implements the "forks"-type unit's discovery path: the
// daemon already forked itself before Start ran, so instead of creating
// a child, MethodStart.Path is read as a pid file naming the process to
// adopt. The process tracker -- not os.Process.Wait, which only works on
// real children -- is what later reports this PID's exit.
func (c *Core) attachMethod(u *Unit, kind MethodKind, secondary bool) error {
	method := u.Methods[kind]
	if method == nil {
		return errors.NewValidationError("method not defined", nil).WithContext("path", u.Path.String()).WithContext("kind", kind)
	}

	proc, _, err := c.attacher(context.Background(), process.PIDFileConfig{PIDFile: method.Path}, u.Path.String(), c.logger)
	if err != nil {
		return err
	}

	pid := proc.Pid
	if err := c.tracker.Watch(pid); err != nil {
		return err
	}
	u.addPID(pid)
	c.pidOwner[pid] = u
	if secondary {
		u.SecondaryPID = pid
	} else {
		u.MainPID = pid
	}
	u.pending = &pendingMethod{kind: kind, secondary: secondary}

	c.resourceSample(u, pid)

	return nil
}

// awaitExit is the one goroutine Fork starts per live method invocation.
// It never touches Unit state: it only blocks on the child's own exit
// and relays the outcome onto exitEvents for the event-loop thread to
// dispatch.
func (c *Core) awaitExit(pid int, pending *process.Pending) {
	result := <-pending.Done
	flag := processtracker.ExitNormal
	if result.Flag == process.ExitAbnormal {
		flag = processtracker.ExitAbnormal
	}
	c.tracker.Disregard(pid)
	c.exitEvents <- processtracker.Event{
		Kind:     processtracker.EventExit,
		PID:      pid,
		ExitFlag: flag,
		ExitCode: result.Code,
	}
}
