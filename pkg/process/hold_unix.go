//go:build !windows

package process

import (
	"os"
	"syscall"
)

func holdChild(proc *os.Process) error {
	return proc.Signal(syscall.SIGSTOP)
}

func releaseChild(proc *os.Process) error {
	return proc.Signal(syscall.SIGCONT)
}
