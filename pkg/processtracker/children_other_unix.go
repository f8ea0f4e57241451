//go:build !linux && !windows

package processtracker

import "github.com/core-tools/hsu-svcmgr-go/pkg/errors"

// childrenOf has no portable non-Linux implementation in this package:
// BSD-likes need a kqueue/NOTE_TRACK or sysctl(KERN_PROC) backend,
// named but not implemented here, to discover forked children without
// a full process-table walk. The poll tracker still detects
// direct-watch exits on these platforms; it simply never auto-enrolls
// children there.
func childrenOf(pid int) ([]int, error) {
	return nil, errors.NewInternalError("child discovery unsupported on this platform", nil)
}
