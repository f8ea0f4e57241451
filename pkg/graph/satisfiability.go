package graph

import (
	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
)

// SatState is the three-valued result of satisfiability evaluation,
// ordered worst-to-best as Unsatisfiable < Unsatisfied < Satisfied for
// the "worst of" combinators below.
type SatState int

const (
	Unsatisfiable SatState = iota
	Unsatisfied
	Satisfied
)

func worst(a, b SatState) SatState {
	if a < b {
		return a
	}
	return b
}

// Satisfiability evaluates an Instance (or Service, via its instances)
// vertex against its lifecycle state and dependency groups.
func (g *Graph) Satisfiability(v *Vertex, recursive bool) SatState {
	if v.Kind == VertexService {
		return g.serviceSatisfiability(v, recursive)
	}

	switch v.State {
	case Uninitialised:
		return Unsatisfied
	case Disabled:
		return Unsatisfiable
	case Offline:
		if !recursive {
			return Unsatisfied
		}
		if g.groupsSatisfiable(v, recursive) != Unsatisfiable {
			return Unsatisfied
		}
		return Unsatisfiable
	case Maintenance:
		return Unsatisfiable
	case Online, Degraded:
		return Satisfied
	default:
		return Unsatisfied
	}
}

// serviceSatisfiability combines a service vertex's instances with the
// same worst-of-all rule RequireAll uses: a service target in a
// dependency group is satisfied only when all of its instances are.
func (g *Graph) serviceSatisfiability(v *Vertex, recursive bool) SatState {
	result := Satisfied
	any := false
	for _, h := range v.Dependencies {
		d := g.at(h)
		if d.Kind != VertexInstance {
			continue
		}
		any = true
		result = worst(result, g.Satisfiability(d, recursive))
	}
	if !any {
		return Unsatisfied
	}
	return result
}

// groupsSatisfiable combines all of v's own dependency-group vertices
// (its RequireAll-style standing obligation to satisfy every group it
// was assigned during vertex setup) into one SatState.
func (g *Graph) groupsSatisfiable(v *Vertex, recursive bool) SatState {
	result := Satisfied
	any := false
	for _, h := range v.Dependencies {
		d := g.at(h)
		if d.Kind != VertexGroup {
			continue
		}
		any = true
		result = worst(result, g.groupSatisfiability(d, recursive))
	}
	if !any {
		return Satisfied
	}
	return result
}

// groupSatisfiability evaluates one dependency-group vertex against its
// targets, per its own quantifier kind.
func (g *Graph) groupSatisfiability(group *Vertex, recursive bool) SatState {
	switch group.GroupKind {
	case domain.GroupRequireAll:
		return g.requireAll(group, recursive)
	case domain.GroupRequireAny:
		return g.requireAny(group, recursive)
	case domain.GroupOptionalAll:
		result := g.requireAll(group, recursive)
		if result == Unsatisfiable {
			return Satisfied
		}
		return result
	case domain.GroupExcludeAll:
		return g.excludeAll(group)
	default:
		return g.requireAll(group, recursive)
	}
}

func (g *Graph) requireAll(group *Vertex, recursive bool) SatState {
	result := Satisfied
	for _, h := range group.Dependencies {
		result = worst(result, g.Satisfiability(g.at(h), recursive))
	}
	return result
}

func (g *Graph) requireAny(group *Vertex, recursive bool) SatState {
	if len(group.Dependencies) == 0 {
		return Satisfied
	}
	sawNonUnsatisfiable := false
	for _, h := range group.Dependencies {
		s := g.Satisfiability(g.at(h), recursive)
		if s == Satisfied {
			return Satisfied
		}
		if s != Unsatisfiable {
			sawNonUnsatisfiable = true
		}
	}
	if sawNonUnsatisfiable {
		return Unsatisfied
	}
	return Unsatisfiable
}

// excludeAll is satisfied when every target instance is not running and
// not enabled toward running; unsatisfiable if any target is Online or
// Degraded while enabled.
func (g *Graph) excludeAll(group *Vertex) SatState {
	for _, h := range group.Dependencies {
		for _, inst := range g.flattenInstances(g.at(h)) {
			if (inst.State == Online || inst.State == Degraded) && inst.IsEnabled {
				return Unsatisfiable
			}
		}
	}
	return Satisfied
}

// flattenInstances returns v itself if it is an Instance, or all Instance
// vertices reachable as v's Dependencies if v is a Service.
func (g *Graph) flattenInstances(v *Vertex) []*Vertex {
	if v.Kind == VertexInstance {
		return []*Vertex{v}
	}
	var out []*Vertex
	for _, h := range v.Dependencies {
		d := g.at(h)
		if d.Kind == VertexInstance {
			out = append(out, d)
		}
	}
	return out
}
