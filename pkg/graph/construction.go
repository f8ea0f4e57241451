package graph

import (
	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
)

// InstallService is install_service: find-or-add the Service vertex for
// svc, with no further setup performed.
func (g *Graph) InstallService(svc domain.ServicePath) *Vertex {
	return g.findOrAdd(domain.ServicePath{Service: svc.Service}, VertexService)
}

// InstallInst is install_inst: find-or-add the Instance vertex for inst,
// find-or-add its owning Service vertex, and link them with a
// Service -> Instance dependency edge -- every Service vertex has its
// Instance vertices as direct dependencies.
func (g *Graph) InstallInst(inst domain.ServicePath) *Vertex {
	svc := g.InstallService(domain.ServicePath{Service: inst.Service})
	v := g.findOrAdd(inst, VertexInstance)
	g.addEdge(svc.Handle, v.Handle)
	return v
}

// VertexSetup is vertex_setup: idempotent. Fetches the vertex's
// dependency groups from the repository (an instance also inherits its
// service's groups), synthesizes a group vertex per group
// with a unique #depgroups/<n> path suffix and an owner -> group edge,
// and a group -> target edge per group target -- rejecting any edge that
// would close a cycle.
func (g *Graph) VertexSetup(v *Vertex) error {
	if v.IsSetup {
		return nil
	}

	desc, err := g.repo.Lookup(v.Path)
	if err != nil {
		g.logger.Warnf("No descriptor for vertex, path: %s, error: %v", v.Path, err)
		v.IsSetup = true
		return nil
	}
	v.IsEnabled = desc.IsEnabled

	groups := append([]domain.DependencyGroup{}, desc.Groups...)
	if v.Kind == VertexInstance {
		svcDesc, err := g.repo.Lookup(domain.ServicePath{Service: v.Path.Service})
		if err == nil {
			groups = append(groups, svcDesc.Groups...)
		}
	}

	for n, grp := range groups {
		groupPath := domain.DepGroupPath(v.Path, n)
		groupVertex := g.findOrAdd(groupPath, VertexGroup)
		groupVertex.GroupKind = grp.Kind
		groupVertex.RestartOn = grp.RestartOn
		groupVertex.IsSetup = true
		groupVertex.IsEnabled = true

		g.addEdge(v.Handle, groupVertex.Handle)

		for _, target := range grp.Targets {
			kind := VertexService
			if target.HasInstance() {
				kind = VertexInstance
			}
			targetVertex := g.findOrAdd(target, kind)

			if g.reachable(targetVertex.Handle, v.Handle) {
				g.logger.Errorf("Cyclic dependency rejected, owner: %s, group: %s, target: %s", v.Path, groupPath, target)
				continue
			}
			g.addEdge(groupVertex.Handle, targetVertex.Handle)
		}
	}

	if desc.Path.Service != "" && len(desc.Instances) > 0 && v.Kind == VertexService {
		for _, instName := range desc.Instances {
			g.InstallInst(domain.ServicePath{Service: v.Path.Service, Instance: instName})
		}
	}

	v.IsSetup = true
	return nil
}

// reachable reports whether to is reachable from from by following
// Dependencies edges, without descending into ExcludeAll groups: their
// semantics are a negative dependency, not a real one, so they are
// pruned from the reachability walk.
func (g *Graph) reachable(from, to Handle) bool {
	visited := map[Handle]bool{from: true}
	queue := []Handle{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		v := g.at(cur)
		for _, dep := range v.Dependencies {
			depV := g.at(dep)
			if depV.Kind == VertexGroup && depV.GroupKind == domain.GroupExcludeAll {
				continue
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			queue = append(queue, dep)
		}
	}
	return false
}
