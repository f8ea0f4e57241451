// Package eventloop implements the single dispatching goroutine: the
// only code that may call restarter.Core.HandleProcessEvent,
// graph.Graph.ProcessNote, or mutate a Unit/Vertex. Every other package in
// this module either runs before this loop starts (bootstrap, config) or
// only ever posts onto a channel this loop selects on (notify.Receiver,
// processtracker.Tracker, the admin inbox) -- none of them touch shared
// state directly.
package eventloop

import (
	"context"
	"time"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/graph"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notebus"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notify"
	"github.com/core-tools/hsu-svcmgr-go/pkg/processtracker"
	"github.com/core-tools/hsu-svcmgr-go/pkg/restarter"
	"github.com/core-tools/hsu-svcmgr-go/pkg/timerset"
)

// Loop owns the collaborators that must never be touched off this one
// goroutine: the Note Bus, the Graph Engine, the Restarter Core, and
// the timer set that schedules callbacks back onto it.
type Loop struct {
	logger  logging.Logger
	bus     *notebus.Bus
	graph   *graph.Graph
	core    *restarter.Core
	timers  *timerset.Set
	tracker processtracker.Tracker
	notify  notifySource

	// admin carries notes from the (separately goroutined) control
	// surface -- the only inbound channel this loop doesn't own the
	// producer of -- per the same "post onto a channel, never mutate
	// directly" rule notify.Receiver and processtracker.Tracker follow.
	admin chan domain.Note
}

// notifySource is the slice of notify.Receiver this loop actually needs,
// kept as an interface so tests can substitute a fake without opening a
// real unixgram socket.
type notifySource interface {
	Messages() <-chan notify.Message
}

// New builds a Loop over already-constructed collaborators. Bootstrap
// (pkg/config, cmd/srv) is responsible for wiring the Graph, the Core, and
// the notify Receiver against the same Bus and Timer Set before calling
// this.
func New(logger logging.Logger, bus *notebus.Bus, g *graph.Graph, core *restarter.Core, timers *timerset.Set, tracker processtracker.Tracker, receiver notifySource) *Loop {
	return &Loop{
		logger:  logger,
		bus:     bus,
		graph:   g,
		core:    core,
		timers:  timers,
		tracker: tracker,
		notify:  receiver,
		admin:   make(chan domain.Note, 16),
	}
}

// PostAdmin queues an administrative note (Enable/Disable/Restart) for
// the loop to process on its own goroutine. Safe to call from any
// goroutine -- this is the one sanctioned cross-goroutine entry point
// besides the process tracker and notify sockets.
func (l *Loop) PostAdmin(note domain.Note) {
	l.admin <- note
}

// Run multiplexes every external event source until ctx is cancelled,
// draining the Note Bus to a fixed point after each one: notes emitted
// during processing of one external event are fully drained before the
// next external event is handled.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("Event loop panic, recovered: %v", r)
		}
	}()

	for {
		timer := l.nextTimerChan()

		select {
		case <-ctx.Done():
			return

		case evt, ok := <-l.tracker.Events():
			if !ok {
				return
			}
			l.dispatch(func() { l.core.HandleProcessEvent(evt) })

		case evt, ok := <-l.core.ExitEvents():
			if !ok {
				return
			}
			l.dispatch(func() { l.core.HandleProcessEvent(evt) })

		case msg, ok := <-l.notifyMessages():
			if !ok {
				return
			}
			l.dispatch(func() { l.handleNotify(msg) })

		case note := <-l.admin:
			l.dispatch(func() { l.bus.Post(note) })

		case <-timer:
			l.dispatch(l.timers.FireDue)
		}
	}
}

// notifyMessages tolerates a Loop with no notify Receiver wired (e.g. a
// unit test exercising only the restarter/graph side) by returning a
// channel that never fires rather than nil-deref-ing on l.notify.
func (l *Loop) notifyMessages() <-chan notify.Message {
	if l.notify == nil {
		return nil
	}
	return l.notify.Messages()
}

// nextTimerChan returns a channel that fires at the earliest pending
// timer's deadline, or nil (never fires) if no timer is pending -- a
// nil channel in a select simply never becomes ready, which is exactly
// "don't wake for timers when there are none".
func (l *Loop) nextTimerChan() <-chan time.Time {
	deadline, ok := l.timers.NextDeadline()
	if !ok {
		return nil
	}
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	return time.After(delay)
}

// dispatch runs one external-event handler, then drains every note it
// (transitively) posted, routing each to the Graph Engine or the
// Restarter Core per its Kind, until the bus is empty. A panic in either
// step is recovered, logged and discarded, and the loop goes on.
func (l *Loop) dispatch(handle func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("Event handler panic, recovered: %v", r)
		}
	}()
	handle()
	l.bus.DrainAll(l.routeNote)
}

func (l *Loop) routeNote(note domain.Note) {
	switch note.Kind {
	case domain.NoteKindStateChange, domain.NoteKindAdminReq:
		l.graph.ProcessNote(note)
	case domain.NoteKindRestarterRequest:
		u, ok := l.core.Lookup(note.Path)
		if !ok {
			l.logger.Warnf("RestarterRequest for unknown unit, path: %s", note.Path)
			return
		}
		l.core.UnitMsg(u, note)
	}
}

// handleNotify dispatches one parsed notify-socket datagram to the
// owning unit, resolved by the sending process's PID.
func (l *Loop) handleNotify(msg notify.Message) {
	u, ok := l.core.OwnerOf(msg.PID)
	if !ok {
		l.logger.Warnf("Notify datagram from unowned pid, pid: %d", msg.PID)
		return
	}
	switch msg.Kind {
	case notify.Ready:
		l.core.UnitNotifyReady(u)
	case notify.Status:
		l.core.UnitNotifyStatus(u, msg.Status)
	case notify.MainPID:
		if _, tracked := u.PIDs[msg.Pid]; !tracked {
			l.logger.Warnf("Notify MAINPID names an untracked pid, path: %s, pid: %d", u.Path, msg.Pid)
			return
		}
		u.MainPID = msg.Pid
	}
}
