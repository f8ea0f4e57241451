//go:build !windows

package processtracker

import (
	"sync"
	"time"

	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/processstate"
)

// pollTracker is the portable fallback backend: it has no child-fork
// visibility of its own, so it rediscovers children of watched PIDs by
// walking /proc on each tick, using the same liveness-check idiom as
// pkg/processstate/is_running_unix.go (os.FindProcess + Signal(0)).
type pollTracker struct {
	mutex    sync.Mutex
	watched  map[int]struct{}
	children map[int]int // child pid -> parent pid, for exit attribution
	events   chan Event
	interval time.Duration
	logger   logging.Logger
	stop     chan struct{}
	stopped  chan struct{}
}

// NewPollTracker starts a tracker that polls every interval.
func NewPollTracker(interval time.Duration, logger logging.Logger) Tracker {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	t := &pollTracker{
		watched:  make(map[int]struct{}),
		children: make(map[int]int),
		events:   make(chan Event, 64),
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *pollTracker) Watch(pid int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.watched[pid] = struct{}{}
	return nil
}

func (t *pollTracker) Disregard(pid int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.watched, pid)
	for child, parent := range t.children {
		if parent == pid {
			delete(t.children, child)
		}
	}
}

func (t *pollTracker) Events() <-chan Event {
	return t.events
}

func (t *pollTracker) Close() error {
	close(t.stop)
	<-t.stopped
	return nil
}

func (t *pollTracker) run() {
	defer close(t.stopped)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *pollTracker) tick() {
	t.mutex.Lock()
	watched := make([]int, 0, len(t.watched))
	for pid := range t.watched {
		watched = append(watched, pid)
	}
	t.mutex.Unlock()

	for _, pid := range watched {
		t.discoverChildren(pid)
	}

	t.mutex.Lock()
	tracked := make([]int, 0, len(t.watched)+len(t.children))
	for pid := range t.watched {
		tracked = append(tracked, pid)
	}
	for pid := range t.children {
		tracked = append(tracked, pid)
	}
	t.mutex.Unlock()

	for _, pid := range tracked {
		running, _ := processstate.IsProcessRunning(pid)
		if !running {
			t.emitExit(pid)
		}
	}
}

func (t *pollTracker) discoverChildren(parent int) {
	childPIDs, err := childrenOf(parent)
	if err != nil {
		return
	}

	t.mutex.Lock()
	var newChildren []int
	for _, child := range childPIDs {
		if _, known := t.children[child]; known {
			continue
		}
		if _, isWatched := t.watched[child]; isWatched {
			continue
		}
		t.children[child] = parent
		newChildren = append(newChildren, child)
	}
	t.mutex.Unlock()

	for _, child := range newChildren {
		t.events <- Event{Kind: EventChild, ParentPID: parent, PID: child}
	}
}

func (t *pollTracker) emitExit(pid int) {
	t.mutex.Lock()
	_, wasWatched := t.watched[pid]
	_, wasChild := t.children[pid]
	delete(t.watched, pid)
	delete(t.children, pid)
	t.mutex.Unlock()

	if !wasWatched && !wasChild {
		return
	}

	flag, code := exitStatus(pid)
	t.events <- Event{Kind: EventExit, PID: pid, ExitFlag: flag, ExitCode: code}
}

// exitStatus best-efforts a normal/abnormal classification for a PID this
// process did not itself Wait() on (e.g. a watched child reparented or a
// process not forked by us). Without a Wait4 result we cannot recover the
// real exit code, so we report it as abnormal with code -1: correct
// per-unit failure-counter accounting requires exit status to come from
// the fork discipline's own os.Process.Wait (see pkg/process/fork.go),
// which bypasses this path entirely for directly-forked methods.
func exitStatus(pid int) (ExitFlag, int) {
	return ExitAbnormal, -1
}
