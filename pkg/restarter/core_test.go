package restarter

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notebus"
	"github.com/core-tools/hsu-svcmgr-go/pkg/process"
	"github.com/core-tools/hsu-svcmgr-go/pkg/processtracker"
	"github.com/core-tools/hsu-svcmgr-go/pkg/timerset"
)

// fakeTracker is a no-op processtracker.Tracker: the tests drive exits
// through Core.ExitEvents()/HandleProcessEvent directly, so the tracker
// itself never needs to produce real events.
type fakeTracker struct {
	watched map[int]bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{watched: make(map[int]bool)}
}

func (f *fakeTracker) Watch(pid int) error        { f.watched[pid] = true; return nil }
func (f *fakeTracker) Disregard(pid int)          { delete(f.watched, pid) }
func (f *fakeTracker) Events() <-chan processtracker.Event {
	return make(chan processtracker.Event)
}
func (f *fakeTracker) Close() error { return nil }

func testLogger() logging.Logger {
	return logging.NewLogger("test", logging.LogFuncs{
		Debugf: func(string, ...interface{}) {},
		Infof:  func(string, ...interface{}) {},
		Warnf:  func(string, ...interface{}) {},
		Errorf: func(string, ...interface{}) {},
	})
}

// fakeForker hands out Pending objects whose Done channel the test
// controls directly, and whose Process is a real-but-never-started
// os.Process wrapper so Release/Kill calls are harmless no-ops.
type fakeForker struct {
	nextPID int
	done    map[int]chan process.ExitResult
}

func newFakeForker() *fakeForker {
	return &fakeForker{nextPID: 1000, done: make(map[int]chan process.ExitResult)}
}

func (f *fakeForker) fork(ctx context.Context, method *Method, id string, logger logging.Logger) (*process.Pending, error) {
	f.nextPID++
	pid := f.nextPID
	done := make(chan process.ExitResult, 1)
	f.done[pid] = done
	return &process.Pending{Process: &os.Process{Pid: pid}, Done: done}, nil
}

func (f *fakeForker) resolve(pid int, flag process.ExitFlag, code int) {
	f.done[pid] <- process.ExitResult{Flag: flag, Code: code}
}

// fakeAttacher hands out a PID for a TypeForks unit's Start method
// without reading an actual pid file, the same way fakeForker stands in
// for a real exec.
type fakeAttacher struct {
	nextPID int
}

func newFakeAttacher() *fakeAttacher {
	return &fakeAttacher{nextPID: 5000}
}

func (f *fakeAttacher) attach(ctx context.Context, config process.PIDFileConfig, id string, logger logging.Logger) (*os.Process, io.ReadCloser, error) {
	f.nextPID++
	return &os.Process{Pid: f.nextPID}, nil, nil
}

// fakeClock is a manually-advanced time source for timerset.NewWithClock,
// so tests can cross the 2000/5000/500 ms boundaries without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCore(t *testing.T) (*Core, *timerset.Set, *fakeClock, *fakeForker, *notebus.Bus) {
	core, timers, clock, forker, _, bus := newTestCoreWithAttacher(t)
	return core, timers, clock, forker, bus
}

func newTestCoreWithAttacher(t *testing.T) (*Core, *timerset.Set, *fakeClock, *fakeForker, *fakeAttacher, *notebus.Bus) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	timers := timerset.NewWithClock(clock.Now)
	bus := notebus.New()
	tracker := newFakeTracker()
	core := NewCore(testLogger(), bus, timers, tracker, "/tmp/notify.sock")
	forker := newFakeForker()
	core.SetForker(forker.fork)
	attacher := newFakeAttacher()
	core.SetAttacher(attacher.attach)
	return core, timers, clock, forker, attacher, bus
}

// fireDueAfter advances the fake clock past delay and fires whatever
// becomes due, standing in for the event loop's timer wait.
func fireDueAfter(timers *timerset.Set, clock *fakeClock, delay time.Duration) {
	clock.Advance(delay)
	timers.FireDue()
}

func path(svc, inst string) domain.ServicePath {
	return domain.ServicePath{Service: svc, Instance: inst}
}

// drainExitEvents pumps pending exit events from the forked-method relay
// channel into the state machine, standing in for the event loop. The
// relay goroutine sends asynchronously, so it waits up to a second for
// the first event before draining whatever else is already queued.
func drainExitEvents(core *Core) {
	select {
	case evt := <-core.ExitEvents():
		core.HandleProcessEvent(evt)
	case <-time.After(time.Second):
		return
	}
	for {
		select {
		case evt := <-core.ExitEvents():
			core.HandleProcessEvent(evt)
		default:
			return
		}
	}
}

func TestSimpleUnitCleanStart(t *testing.T) {
	core, _, _, forker, bus := newTestCore(t)
	p := path("a", "i")
	u := core.UnitAdd(p, TypeSimple)
	u.Methods[MethodStart] = &Method{Path: "/bin/true"}

	core.UnitMsg(u, domain.NewRestarterRequest(p, domain.RestarterRequestStart, domain.SeverityRestart))

	require.Equal(t, Online, u.State)
	assert.NotZero(t, u.MainPID)

	var notes []domain.Note
	bus.DrainAll(func(n domain.Note) { notes = append(notes, n) })
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NoteKindStateChange, notes[0].Kind)
	assert.Equal(t, domain.StateChangeOnline, notes[0].StateChangeSub())

	mainPID := u.MainPID
	forker.resolve(mainPID, process.ExitNormal, 0)
	drainExitEvents(core)

	// No Stop method is defined and the main PID has already exited, so
	// the Stop->StopTerm->advance-to-target cascade resolves synchronously
	// within the same dispatch, landing directly on Offline.
	assert.Equal(t, Offline, u.State)
	assert.Equal(t, Offline, u.Target)

	bus.DrainAll(func(n domain.Note) { notes = append(notes, n) })
	require.NotEmpty(t, notes)
	assert.Equal(t, domain.StateChangeOffline, notes[len(notes)-1].StateChangeSub())
}

// resolveAttached delivers an exit for an attached (TypeForks) PID the
// way the process tracker would: straight into HandleProcessEvent,
// never through Core.ExitEvents (that channel only ever carries directly
// forked methods).
func resolveAttached(core *Core, pid int, flag processtracker.ExitFlag, code int) {
	core.HandleProcessEvent(processtracker.Event{Kind: processtracker.EventExit, PID: pid, ExitFlag: flag, ExitCode: code})
}

func TestAbnormalExitEscalatesToMaintenance(t *testing.T) {
	core, timers, clock, _, _, _ := newTestCoreWithAttacher(t)
	p := path("u", "")
	// TypeForks stays in Start (waiting on a readiness notification)
	// instead of TypeSimple's immediate auto-advance to Online, so a
	// failing main PID is still evaluated as a Start-method failure
	// rather than triggering the Online-abnormal-exit shutdown reaction.
	u := core.UnitAdd(p, TypeForks)
	u.Methods[MethodStart] = &Method{Path: "/var/run/u.pid"}

	core.UnitMsg(u, domain.NewRestarterRequest(p, domain.RestarterRequestStart, domain.SeverityRestart))
	require.Equal(t, Start, u.State)

	for i := 1; i <= 5; i++ {
		pid := u.MainPID
		resolveAttached(core, pid, processtracker.ExitAbnormal, 1)

		require.Equal(t, i, u.FailureCounts[MethodStart], "iteration %d", i)
		require.NotZero(t, u.RestartTimer)

		fireDueAfter(timers, clock, restartCooldown) // 5000ms cooldown phase
		fireDueAfter(timers, clock, restartReentry)  // 500ms re-entry phase

		require.Equal(t, Start, u.State, "iteration %d did not retry into Start", i)
	}

	// Sixth abnormal exit lands in Maintenance.
	pid := u.MainPID
	resolveAttached(core, pid, processtracker.ExitAbnormal, 1)

	assert.Equal(t, Maintenance, u.State)
	assert.Empty(t, u.PIDs)
	assert.Zero(t, u.MethodTimer)
	assert.Zero(t, u.RestartTimer)
}

func TestUnitAddIsIdempotent(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)
	p := path("svc", "inst")

	first := core.UnitAdd(p, TypeSimple)
	first.FailureCounts[MethodStart] = 3

	second := core.UnitAdd(p, TypeOneshot)

	assert.Same(t, first, second)
	assert.Equal(t, TypeSimple, second.Type)
	assert.Equal(t, 3, second.FailureCounts[MethodStart])
}

func TestReadinessAdvancesStartToPostStart(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)
	p := path("svc", "ready")
	u := core.UnitAdd(p, TypeForks)
	u.Methods[MethodStart] = &Method{Path: "/usr/bin/daemon"}

	core.UnitMsg(u, domain.NewRestarterRequest(p, domain.RestarterRequestStart, domain.SeverityRestart))
	require.Equal(t, Start, u.State)
	require.NotZero(t, u.MethodTimer)

	core.UnitNotifyReady(u)

	assert.Equal(t, Online, u.State)
	assert.Zero(t, u.MethodTimer)
}

func TestForksUnitAttachesViaPIDFile(t *testing.T) {
	core, _, _, forker, _, _ := newTestCoreWithAttacher(t)
	p := path("svc", "daemon")
	u := core.UnitAdd(p, TypeForks)
	u.Methods[MethodStart] = &Method{Path: "/var/run/svc.pid"}

	core.UnitMsg(u, domain.NewRestarterRequest(p, domain.RestarterRequestStart, domain.SeverityRestart))

	require.Equal(t, Start, u.State)
	assert.Equal(t, 5001, u.MainPID, "MainPID must come from the attacher, not forkMethod's own counter")
	assert.NotContains(t, forker.done, u.MainPID, "a forks-type unit's main PID must never come from forker")
}

func TestStopWithNoPIDsAdvancesImmediately(t *testing.T) {
	core, _, _, _, bus := newTestCore(t)
	p := path("svc", "stopme")
	u := core.UnitAdd(p, TypeSimple)
	u.State = Online
	u.Target = Online

	core.UnitMsg(u, domain.NewRestarterRequest(p, domain.RestarterRequestStop, domain.SeverityRestart))

	assert.Equal(t, Offline, u.State)

	var notes []domain.Note
	bus.DrainAll(func(n domain.Note) { notes = append(notes, n) })
	require.NotEmpty(t, notes)
	assert.Equal(t, domain.StateChangeOffline, notes[len(notes)-1].StateChangeSub())
}
