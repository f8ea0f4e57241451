//go:build linux

package processtracker

import (
	"os"
	"strconv"
	"strings"
)

// childrenOf lists the immediate children of pid by reading the
// kernel's own child-task accounting under /proc, avoiding a full
// process-table scan on every tick, treating /proc as the authoritative
// process-group source on Linux.
func childrenOf(pid int) ([]int, error) {
	path := "/proc/" + strconv.Itoa(pid) + "/task/" + strconv.Itoa(pid) + "/children"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(string(raw))
	children := make([]int, 0, len(fields))
	for _, f := range fields {
		childPID, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		children = append(children, childPID)
	}
	return children, nil
}
