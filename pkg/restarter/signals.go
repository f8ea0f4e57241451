package restarter

import (
	"os"

	"github.com/core-tools/hsu-svcmgr-go/pkg/process"
)

// terminateSignal and killSignal are the only out-of-band mechanisms
// used to end processes: SIGTERM then SIGKILL, never SIGSTOP/SIGCONT
// (those are reserved for the fork-and-hold handshake in pkg/process, a
// different concern).
func terminateSignal(pid int) error {
	return process.Terminate(pid)
}

func killSignal(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill(proc)
}
