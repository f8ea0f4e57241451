package restarter

// onMethodTimeout handles a method timer firing; its meaning depends
// entirely on which state it fires in.
func (c *Core) onMethodTimeout(u *Unit) {
	u.MethodTimer = 0

	switch u.State {
	case Stop:
		// A firing here means the stop method itself did not complete in
		// time; move the shutdown forward without waiting for its exit.
		c.enterState(u, StopTerm)

	case StopTerm:
		c.enterState(u, StopKill)

	case StopKill:
		c.logger.Errorf("Process did not terminate after SIGKILL, path: %s, pids: %v", u.Path, u.PIDs)
		c.advanceToTarget(u)

	case PreStart, Start, PostStart:
		c.onMethodFailure(u, methodKindForState(u.State))

	case PostStop:
		c.advanceToTarget(u)
	}
}

func methodKindForState(state UnitState) MethodKind {
	switch state {
	case PreStart:
		return MethodPreStart
	case Start:
		return MethodStart
	case PostStart:
		return MethodPostStart
	case PostStop:
		return MethodPostStop
	default:
		return MethodStart
	}
}

// onMethodFailure applies the per-method failure-counter policy shared
// by method timeouts and abnormal exits: exactly 5 consecutive failures
// retry once more, the 6th lands in Maintenance.
func (c *Core) onMethodFailure(u *Unit, kind MethodKind) {
	u.FailureCounts[kind]++
	if u.FailureCounts[kind] > maxConsecutiveFails {
		c.logger.Errorf("Method exceeded failure budget, path: %s, kind: %v, count: %d", u.Path, kind, u.FailureCounts[kind])
		c.enterState(u, Maintenance)
		return
	}
	retryState := stateForMethod(kind)
	c.logger.Warnf("Method failed, scheduling retry, path: %s, kind: %v, count: %d", u.Path, kind, u.FailureCounts[kind])
	c.armRestartTimer(u, retryState)
}

func stateForMethod(kind MethodKind) UnitState {
	switch kind {
	case MethodPreStart:
		return PreStart
	case MethodStart:
		return Start
	case MethodPostStart:
		return PostStart
	case MethodPostStop:
		return PostStop
	default:
		return Start
	}
}
