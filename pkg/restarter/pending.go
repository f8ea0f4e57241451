package restarter

import (
	"github.com/core-tools/hsu-svcmgr-go/pkg/process"
)

// pendingMethod tracks the fork handshake for whichever method is
// currently running as MainPID or SecondaryPID. pending is nil for an
// attached ("forks"-type) start, which has no handshake of its own.
type pendingMethod struct {
	kind      MethodKind
	secondary bool
	pending   *process.Pending
}
