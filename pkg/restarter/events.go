package restarter

import (
	"github.com/core-tools/hsu-svcmgr-go/pkg/processtracker"
)

// HandleProcessEvent implements unit_ptevent: resolve the owning unit
// from the PID, then apply the numbered process-event reactions below.
// Unknown PIDs are logged and discarded.
func (c *Core) HandleProcessEvent(evt processtracker.Event) {
	switch evt.Kind {
	case processtracker.EventChild:
		owner, ok := c.pidOwner[evt.ParentPID]
		if !ok {
			return
		}
		c.handleChild(owner, evt)
	case processtracker.EventExit:
		owner, ok := c.pidOwner[evt.PID]
		if !ok {
			c.logger.Warnf("Exit event for untracked PID, pid: %d", evt.PID)
			return
		}
		c.handleExit(owner, evt)
	}
}

// handleChild is reaction (1)'s Child half: always update the PID set,
// idempotently, and start tracking the new PID under the same owner so
// its own eventual exit routes correctly. The tracker guarantees a Child
// event surfaces before any Exit that involves the child.
func (c *Core) handleChild(owner *Unit, evt processtracker.Event) {
	owner.addPID(evt.PID)
	c.pidOwner[evt.PID] = owner
	if err := c.tracker.Watch(evt.PID); err != nil {
		c.logger.Warnf("Failed to watch auto-enrolled child, path: %s, pid: %d, error: %v", owner.Path, evt.PID, err)
	}
}

// handleExit is reactions (1)-(4): remove the PID, then dispatch on
// whether it was the unit's main PID, its secondary PID, or neither.
func (c *Core) handleExit(u *Unit, evt processtracker.Event) {
	u.removePID(evt.PID)
	delete(c.pidOwner, evt.PID)

	wasMain := evt.PID == u.MainPID
	wasSecondary := evt.PID == u.SecondaryPID

	if wasMain {
		u.MainPID = 0
	}
	if wasSecondary {
		u.SecondaryPID = 0
	}
	if u.pending != nil && ((wasMain && !u.pending.secondary) || (wasSecondary && u.pending.secondary)) {
		// The method this timer was bounding has already concluded by
		// exit; without this it can still fire later as a stale timeout
		// and re-evaluate a method that has already been accounted for.
		c.cancelMethodTimer(u)
		u.pending = nil
	}

	// Reaction (2): stopping states advance once the PID set drains.
	if u.isStopping() && len(u.PIDs) == 0 {
		switch u.State {
		case Stop:
			c.enterState(u, StopTerm)
		case StopTerm:
			c.enterState(u, StopKill)
		case StopKill:
			c.advanceToTarget(u)
		case PostStop:
			c.advanceToTarget(u)
		}
		return
	}
	if u.isStopping() {
		// Still waiting on other PIDs to drain; nothing else to react to.
		return
	}

	normal := evt.ExitFlag == processtracker.ExitNormal

	switch {
	case wasMain:
		c.handleMainExit(u, normal)
	case wasSecondary && u.State == PostStart:
		c.handleSecondaryPostStartExit(u, normal)
	}
}

// handleMainExit is reaction (3).
func (c *Core) handleMainExit(u *Unit, normal bool) {
	switch u.State {
	case PreStart:
		if normal {
			for pid := range u.PIDs {
				c.tracker.Disregard(pid)
				delete(c.pidOwner, pid)
			}
			u.PIDs = make(map[int]struct{})
			c.enterState(u, Start)
			return
		}
		c.onMethodFailure(u, MethodPreStart)

	case PostStart, Online:
		if normal {
			if u.Type == TypeSimple {
				u.Target = Offline
				c.enterState(u, Stop)
				return
			}
			if u.Type != TypeGroup && len(u.PIDs) == 0 {
				u.Target = Offline
				c.enterState(u, Stop)
				return
			}
			return
		}
		if u.State == Online {
			u.Target = Offline
			c.enterState(u, Stop)
			return
		}
		c.onMethodFailure(u, MethodStart)

	case Start:
		if normal {
			return
		}
		c.onMethodFailure(u, MethodStart)

	default:
		if !normal {
			c.onMethodFailure(u, MethodStart)
		}
	}
}

// handleSecondaryPostStartExit is reaction (4).
func (c *Core) handleSecondaryPostStartExit(u *Unit, normal bool) {
	if normal {
		c.enterState(u, Online)
		return
	}
	c.onMethodFailure(u, MethodPostStart)
}
