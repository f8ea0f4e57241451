// Package domain defines the shared vocabulary the Restarter Core and the
// Graph Engine communicate with: service paths, dependency-group
// descriptors, the note envelope exchanged on the Note Bus, and the
// external Service Repository contract.
package domain

import (
	"fmt"
	"strings"
)

// ServicePath is a two-part identifier (service, instance?). An empty
// Instance means the path names the service itself. Paths compare by
// value.
type ServicePath struct {
	Service  string
	Instance string
}

// HasInstance reports whether the path names a specific instance rather
// than the service as a whole.
func (p ServicePath) HasInstance() bool {
	return p.Instance != ""
}

// String renders "service" or "service/instance".
func (p ServicePath) String() string {
	if p.Instance == "" {
		return p.Service
	}
	return p.Service + "/" + p.Instance
}

// DepGroupPath synthesizes the path of the nth dependency group owned by
// owner, embedding it into the same namespace as real vertices:
// (service, "<base>#depgroups/<n>").
func DepGroupPath(owner ServicePath, n int) ServicePath {
	base := owner.Instance
	if base == "" {
		base = owner.Service
	}
	return ServicePath{
		Service:  owner.Service,
		Instance: fmt.Sprintf("%s#depgroups/%d", base, n),
	}
}

// IsDepGroupPath reports whether p was synthesized by DepGroupPath.
func IsDepGroupPath(p ServicePath) bool {
	return strings.Contains(p.Instance, "#depgroups/")
}
