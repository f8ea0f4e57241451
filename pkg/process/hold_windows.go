//go:build windows

package process

import "os"

// Windows has no SIGSTOP/SIGCONT equivalent reachable through os.Process;
// the fork-and-hold race window stays open on this platform.
func holdChild(proc *os.Process) error {
	return nil
}

func releaseChild(proc *os.Process) error {
	return nil
}
