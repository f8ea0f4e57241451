package process

import (
	"context"
	"io"
	"os"

	"github.com/core-tools/hsu-svcmgr-go/pkg/errors"
)

// ExitFlag mirrors processtracker.ExitFlag without importing it, so
// this package stays independent of the tracker's event model -- a
// forked method's own os.Process.Wait is the restarter's one authoritative
// source of exit status; processtracker only ever resolves exits for
// attached ("forks"-type) units it did not itself start.
type ExitFlag int

const (
	ExitNormal ExitFlag = iota
	ExitAbnormal
)

// ExitResult is what a forked method resolves to once it terminates.
type ExitResult struct {
	Flag ExitFlag
	Code int
}

// Pending is the fork-and-hold handshake object: the restarter must
// know the child's PID immediately (to register it with the process
// tracker and the unit's PID set) while the actual exit is only known
// later, off the calling goroutine, because os.Process.Wait blocks
// until the child is reaped.
//
// The child is sent SIGSTOP right after it starts and stays stopped
// until Release sends SIGCONT. This is the
// closest a Go program can get to a true fork()-then-hold primitive
// without a custom exec shim: os/exec's Start already performs
// fork+exec as one syscall, so the hold begins a few instructions into
// the new program rather than before it, but it still closes the race
// this exists for -- a child that exits before the tracker knows its
// PID.
type Pending struct {
	Process *os.Process
	Output  io.ReadCloser
	Done    <-chan ExitResult
}

// Release ends the hold begun by Fork, letting the child actually run.
// Call it only after the PID has been recorded with the tracker and
// added to the owning unit's PID set.
func (p *Pending) Release() error {
	return releaseChild(p.Process)
}

// Fork runs execute (built by NewStdExecuteCmd), immediately stops the
// child, and starts the single goroutine this module spawns per live
// method invocation: the blocking wait for the child's own termination.
// Nothing else in the restarter touches this goroutine's state directly;
// it only ever writes once to Done before exiting.
func Fork(ctx context.Context, execute StdExecuteCmd) (*Pending, error) {
	proc, output, err := execute(ctx)
	if err != nil {
		return nil, err
	}

	if err := holdChild(proc); err != nil {
		_ = proc.Kill()
		return nil, errors.NewProcessError("failed to hold forked process", err).WithContext("pid", proc.Pid)
	}

	done := make(chan ExitResult, 1)
	go func() {
		state, err := proc.Wait()
		if err != nil {
			done <- ExitResult{Flag: ExitAbnormal, Code: -1}
			return
		}
		if state.Success() {
			done <- ExitResult{Flag: ExitNormal, Code: 0}
			return
		}
		done <- ExitResult{Flag: ExitAbnormal, Code: state.ExitCode()}
	}()

	return &Pending{Process: proc, Output: output, Done: done}, nil
}

// Terminate delivers the graceful termination signal (SIGTERM on Unix,
// Ctrl+Break on Windows) to the process group rooted at pid, for the
// StopTerm state.
func Terminate(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("invalid PID", nil)
	}
	return SendTerminationSignal(pid, false, 0)
}

// Kill force-terminates proc (SIGKILL on Unix, TerminateProcess on
// Windows), for the StopKill state.
func Kill(proc *os.Process) error {
	if proc == nil {
		return errors.NewValidationError("process is nil", nil)
	}
	return proc.Kill()
}
