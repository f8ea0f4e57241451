package process

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/core-tools/hsu-svcmgr-go/pkg/errors"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/processstate"
)

// PIDFileConfig locates an already-running process via the pid file it
// wrote at its own startup -- the one discovery mechanism "forks"-type
// units need: the restarter never forked the process itself, so there
// is no os.Process to Wait() on, only a pid to watch.
type PIDFileConfig struct {
	PIDFile string `yaml:"pid_file"`
}

type StdAttachCmd func(ctx context.Context) (*os.Process, io.ReadCloser, error)

// NewStdAttachCmd builds an attach command that reads a pid file and
// verifies liveness before handing the process back to the restarter.
// restarter.Core.attachMethod calls this through its attacher seam for
// every TypeForks unit's Start method.
func NewStdAttachCmd(config PIDFileConfig, id string, logger logging.Logger) StdAttachCmd {
	return func(ctx context.Context) (*os.Process, io.ReadCloser, error) {
		if ctx == nil {
			return nil, nil, errors.NewValidationError("context cannot be nil", nil).WithContext("id", id)
		}

		logger.Infof("Attaching to process via PID file, id: %s, file: %s", id, config.PIDFile)

		process, err := openProcessByPIDFile(config.PIDFile)
		if err != nil {
			logger.Errorf("Failed to discover process, id: %s, pid_file: %s, error: %v", id, config.PIDFile, err)
			return nil, nil, errors.NewDiscoveryError("failed to discover process", err).WithContext("id", id).WithContext("pid_file", config.PIDFile)
		}

		logger.Infof("Successfully attached to process, id: %s, PID: %d", id, process.Pid)

		return process, nil, nil
	}
}

func openProcessByPIDFile(pidFile string) (*os.Process, error) {
	if err := ValidatePIDFile(pidFile); err != nil {
		return nil, err
	}

	pidBytes, err := os.ReadFile(pidFile)
	if err != nil {
		return nil, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", pidFile)
	}

	pidStr := strings.TrimSpace(string(pidBytes))
	if pidStr == "" {
		return nil, errors.NewValidationError("PID file is empty", nil).WithContext("pid_file", pidFile)
	}

	pid, err := ValidatePID(pidStr)
	if err != nil {
		return nil, errors.NewValidationError("invalid PID in file", err).WithContext("pid_file", pidFile).WithContext("pid_content", pidStr)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return nil, errors.NewProcessError("failed to find process", err).WithContext("pid", pid).WithContext("pid_file", pidFile)
	}

	running, err := processstate.IsProcessRunning(process.Pid)
	if !running {
		return nil, errors.NewProcessError("process is not running", err).WithContext("pid", pid).WithContext("pid_file", pidFile)
	}

	return process, nil
}
