package restarter

import (
	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
)

// enterState is the single transition function: one case per state,
// enumerating its standing contract, in place of separate per-state
// entry functions scattered across the caller.
func (c *Core) enterState(u *Unit, state UnitState) {
	u.State = state

	switch state {
	case PreStart:
		c.enterPreStart(u)
	case Start:
		c.enterStart(u)
	case PostStart:
		c.enterPostStart(u)
	case Online:
		c.enterOnline(u)
	case Stop:
		c.enterStop(u)
	case StopTerm:
		c.enterStopTerm(u)
	case StopKill:
		c.enterStopKill(u)
	case PostStop:
		c.enterPostStop(u)
	case Maintenance:
		c.enterMaintenance(u)
	case Offline, None:
		// Bookkeeping-only states: nothing to do beyond the state write.
	}
}

func (c *Core) enterPreStart(u *Unit) {
	if u.Methods[MethodPreStart] == nil {
		c.enterState(u, Start)
		return
	}
	if err := c.forkMethod(u, MethodPreStart, false); err != nil {
		c.logger.Errorf("Fork failed in prestart, path: %s, error: %v", u.Path, err)
		c.enterState(u, Maintenance)
		return
	}
	c.armMethodTimer(u, defaultMethodTimeout)
}

func (c *Core) enterStart(u *Unit) {
	startFn := c.forkMethod
	if u.Type == TypeForks {
		startFn = c.attachMethod
	}
	if err := startFn(u, MethodStart, false); err != nil {
		c.logger.Errorf("Fork failed in start, path: %s, error: %v", u.Path, err)
		c.enterState(u, Maintenance)
		return
	}
	c.armMethodTimer(u, defaultMethodTimeout)

	if u.Type == TypeSimple || u.Type == TypeOneshot || u.Type == TypeGroup {
		// These types consider the service online as soon as start is
		// running; they do not wait for the method timer or a readiness
		// notification.
		c.enterState(u, PostStart)
	}
}

func (c *Core) enterPostStart(u *Unit) {
	c.cancelMethodTimer(u)
	if u.Methods[MethodPostStart] == nil {
		c.enterState(u, Online)
		return
	}
	if err := c.forkMethod(u, MethodPostStart, true); err != nil {
		c.logger.Errorf("Fork failed in poststart, path: %s, error: %v", u.Path, err)
		c.enterState(u, Maintenance)
		return
	}
	c.armMethodTimer(u, defaultMethodTimeout)
}

func (c *Core) enterOnline(u *Unit) {
	c.cancelMethodTimer(u)
	c.cancelRestartTimer(u)
	u.FailureCounts = [methodKindCount]int{}
	c.bus.Post(domain.NewStateChange(u.Path, domain.StateChangeOnline, domain.SeverityNone))
}

func (c *Core) enterStop(u *Unit) {
	c.cancelMethodTimer(u)
	c.cancelRestartTimer(u)
	if u.Methods[MethodStop] == nil {
		c.enterState(u, StopTerm)
		return
	}
	if err := c.forkMethod(u, MethodStop, true); err != nil {
		c.logger.Warnf("Fork failed in stop, path: %s, error: %v", u.Path, err)
		c.enterState(u, StopTerm)
		return
	}
	c.armMethodTimer(u, defaultMethodTimeout)
}

func (c *Core) enterStopTerm(u *Unit) {
	c.cancelMethodTimer(u)
	if len(u.PIDs) == 0 {
		c.advanceToTarget(u)
		return
	}
	for pid := range u.PIDs {
		if err := sendTerminate(pid); err != nil {
			c.logger.Warnf("Failed to send SIGTERM, path: %s, pid: %d, error: %v", u.Path, pid, err)
		}
	}
	c.armMethodTimer(u, defaultMethodTimeout)
}

func (c *Core) enterStopKill(u *Unit) {
	c.cancelMethodTimer(u)
	if len(u.PIDs) == 0 {
		c.advanceToTarget(u)
		return
	}
	for pid := range u.PIDs {
		if err := sendKill(pid); err != nil {
			c.logger.Warnf("Failed to send SIGKILL, path: %s, pid: %d, error: %v", u.Path, pid, err)
		}
	}
	c.armMethodTimer(u, defaultMethodTimeout)
}

func (c *Core) enterPostStop(u *Unit) {
	// Implemented symmetrically with PreStart/PostStart: both normal and
	// abnormal exit proceed to target, since the unit is already shutting
	// down and re-entering Maintenance here would strand it mid-stop.
	c.cancelMethodTimer(u)
	if u.Methods[MethodPostStop] == nil {
		c.advanceToTarget(u)
		return
	}
	if err := c.forkMethod(u, MethodPostStop, true); err != nil {
		c.logger.Warnf("Fork failed in poststop, path: %s, error: %v", u.Path, err)
		c.advanceToTarget(u)
		return
	}
	c.armMethodTimer(u, defaultMethodTimeout)
}

func (c *Core) enterMaintenance(u *Unit) {
	c.cancelMethodTimer(u)
	c.cancelRestartTimer(u)
	for pid := range u.PIDs {
		delete(c.pidOwner, pid)
		c.tracker.Disregard(pid)
	}
	u.PIDs = make(map[int]struct{})
	u.MainPID = 0
	u.SecondaryPID = 0
	u.pending = nil
	c.bus.Post(domain.NewStateChange(u.Path, domain.StateChangeOffline, domain.SeverityError))
}

// advanceToTarget lands a unit draining out of Stop/StopTerm/StopKill/
// PostStop on whatever it was last told to become, once its PID set is
// empty. A unit with a poststop method passes through PostStop first.
func (c *Core) advanceToTarget(u *Unit) {
	if u.State != PostStop && u.Methods[MethodPostStop] != nil {
		c.enterState(u, PostStop)
		return
	}
	target := u.Target
	if target == Uninitialised || target == None {
		target = Offline
	}
	if target == Online {
		c.enterState(u, PreStart)
		return
	}
	c.enterState(u, Offline)
	c.bus.Post(domain.NewStateChange(u.Path, domain.StateChangeOffline, domain.SeverityNone))
}

func sendTerminate(pid int) error {
	return terminateSignal(pid)
}

func sendKill(pid int) error {
	return killSignal(pid)
}
