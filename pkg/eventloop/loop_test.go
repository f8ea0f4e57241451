package eventloop

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/graph"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notebus"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notify"
	"github.com/core-tools/hsu-svcmgr-go/pkg/process"
	"github.com/core-tools/hsu-svcmgr-go/pkg/processtracker"
	"github.com/core-tools/hsu-svcmgr-go/pkg/restarter"
	"github.com/core-tools/hsu-svcmgr-go/pkg/timerset"
)

func testLogger() logging.Logger {
	return logging.NewLogger("test", logging.LogFuncs{
		Debugf: func(string, ...interface{}) {},
		Infof:  func(string, ...interface{}) {},
		Warnf:  func(string, ...interface{}) {},
		Errorf: func(string, ...interface{}) {},
	})
}

// fakeTracker is a no-op Tracker: these tests drive the loop through its
// own admin channel and fake notify source rather than real tracker
// events, matching restarter/core_test.go's fakeTracker.
type fakeTracker struct {
	events chan processtracker.Event
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{events: make(chan processtracker.Event)}
}

func (f *fakeTracker) Watch(int) error                      { return nil }
func (f *fakeTracker) Disregard(int)                        {}
func (f *fakeTracker) Events() <-chan processtracker.Event  { return f.events }
func (f *fakeTracker) Close() error                         { return nil }

// fakeNotify lets a test hand-deliver notify.Messages without a real
// unixgram socket.
type fakeNotify struct {
	ch chan notify.Message
}

func newFakeNotify() *fakeNotify {
	return &fakeNotify{ch: make(chan notify.Message, 4)}
}

func (f *fakeNotify) Messages() <-chan notify.Message { return f.ch }

// fakeForker hands out fake PIDs without exec'ing anything, mirroring
// restarter/core_test.go's fakeForker so this package's tests can drive
// a unit into Start without touching a real process.
type fakeForker struct {
	nextPID int
	done    map[int]chan process.ExitResult
}

func newFakeForker() *fakeForker {
	return &fakeForker{nextPID: 1000, done: make(map[int]chan process.ExitResult)}
}

func (f *fakeForker) fork(ctx context.Context, method *restarter.Method, id string, logger logging.Logger) (*process.Pending, error) {
	f.nextPID++
	pid := f.nextPID
	done := make(chan process.ExitResult, 1)
	f.done[pid] = done
	return &process.Pending{Process: &os.Process{Pid: pid}, Done: done}, nil
}

func newTestLoop(t *testing.T) (*Loop, *graph.Graph, *restarter.Core, *fakeNotify) {
	repo := domain.NewStaticRepository()
	bus := notebus.New()
	g := graph.New(repo, bus, testLogger())
	timers := timerset.NewWithClock(time.Now)
	tracker := newFakeTracker()
	core := restarter.NewCore(testLogger(), bus, timers, tracker, "/tmp/test.sock")
	fn := newFakeNotify()

	l := New(testLogger(), bus, g, core, timers, tracker, fn)
	require.NotNil(t, l)
	return l, g, core, fn
}

func path(svc, inst string) domain.ServicePath {
	return domain.ServicePath{Service: svc, Instance: inst}
}

func TestRouteNoteSendsStateChangeToGraph(t *testing.T) {
	l, g, _, _ := newTestLoop(t)

	p := path("svc", "i")
	v := g.InstallInst(p)
	require.NoError(t, g.VertexSetup(v))

	l.dispatch(func() {
		l.bus.Post(domain.NewStateChange(p, domain.StateChangeOnline, domain.SeverityNone))
	})

	assert.Equal(t, graph.Online, v.State)
}

func TestRouteNoteSendsRestarterRequestToCore(t *testing.T) {
	l, _, core, _ := newTestLoop(t)
	forker := newFakeForker()
	core.SetForker(forker.fork)

	p := path("svc", "i")
	u := core.UnitAdd(p, restarter.TypeGroup)
	u.Methods[restarter.MethodStart] = &restarter.Method{Path: "/bin/true"}

	l.dispatch(func() {
		l.bus.Post(domain.NewRestarterRequest(p, domain.RestarterRequestStart, domain.SeverityRestart))
	})

	// TypeGroup auto-advances Start -> PostStart -> Online with no
	// further methods defined, never waiting for a process event.
	assert.Equal(t, restarter.Online, u.State)
}

func TestRouteNoteUnknownPathIsDiscarded(t *testing.T) {
	l, _, _, _ := newTestLoop(t)

	// Neither the graph nor the restarter knows this path; routing it
	// must not panic, just log and drop it.
	assert.NotPanics(t, func() {
		l.dispatch(func() {
			l.bus.Post(domain.NewRestarterRequest(path("ghost", "i"), domain.RestarterRequestStart, domain.SeverityNone))
		})
	})
}

func TestHandleNotifyReadyAdvancesPendingUnit(t *testing.T) {
	l, _, core, _ := newTestLoop(t)
	forker := newFakeForker()
	core.SetForker(forker.fork)
	// A forks-type unit attaches through its pid file instead of forking,
	// so the attacher is faked too.
	core.SetAttacher(func(ctx context.Context, config process.PIDFileConfig, id string, logger logging.Logger) (*os.Process, io.ReadCloser, error) {
		return &os.Process{Pid: 5001}, nil, nil
	})

	p := path("svc", "i")
	u := core.UnitAdd(p, restarter.TypeForks)
	u.Methods[restarter.MethodStart] = &restarter.Method{Path: "/var/run/svc.pid"}

	l.dispatch(func() {
		core.UnitMsg(u, domain.NewRestarterRequest(p, domain.RestarterRequestStart, domain.SeverityRestart))
	})
	require.Equal(t, restarter.Start, u.State)

	pid := u.MainPID
	require.NotZero(t, pid)

	l.dispatch(func() {
		l.handleNotify(notify.Message{PID: pid, Kind: notify.Ready})
	})

	// No PostStart method is defined, so the readiness datagram advances
	// the unit straight through PostStart to Online.
	assert.Equal(t, restarter.Online, u.State)
}

func TestHandleNotifyUnownedPIDIsDiscarded(t *testing.T) {
	l, _, _, _ := newTestLoop(t)

	assert.NotPanics(t, func() {
		l.dispatch(func() {
			l.handleNotify(notify.Message{PID: 99999, Kind: notify.Ready})
		})
	})
}

func TestNextTimerChanNilWhenNoTimersPending(t *testing.T) {
	l, _, _, _ := newTestLoop(t)
	assert.Nil(t, l.nextTimerChan())
}
