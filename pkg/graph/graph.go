// Package graph implements the Graph Engine: a typed dependency graph
// over services, instances, and dependency groups, with satisfiability
// evaluation and note-driven propagation. Vertices live in an arena
// addressed by a stable integer Handle rather than by pointer, so the
// graph's only invariant to defend is acyclicity of dependency edges --
// there is no ownership ambiguity to reason about separately.
package graph

import (
	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notebus"
)

// Handle addresses one Vertex in a Graph's arena. The zero Handle never
// refers to a live vertex (index 0 is reserved).
type Handle int

// VertexKind is a sum-type tag in place of per-kind polymorphism:
// satisfiability and propagation switch on this rather than on vertex
// type.
type VertexKind int

const (
	VertexService VertexKind = iota
	VertexInstance
	VertexGroup
)

// VertexState is the lifecycle state of a Vertex, distinct from the
// restarter's UnitState: a vertex is a graph-side projection of a
// unit's standing, not the unit itself.
type VertexState int

const (
	Uninitialised VertexState = iota
	Offline
	Online
	Degraded
	Disabled
	Maintenance
)

func (s VertexState) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Offline:
		return "offline"
	case Online:
		return "online"
	case Degraded:
		return "degraded"
	case Disabled:
		return "disabled"
	case Maintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Vertex is one node of the graph: a service, an instance, or a
// dependency group. Group-only fields are zero-valued on service/instance
// vertices.
type Vertex struct {
	Handle Handle
	Path   domain.ServicePath
	Kind   VertexKind

	Dependencies []Handle // edges to prerequisites, in insertion order
	Dependents   []Handle // edges from consumers, in insertion order

	IsSetup   bool
	IsEnabled bool
	ToOffline bool
	ToDisable bool
	State     VertexState

	GroupKind domain.GroupKind
	RestartOn domain.RestartSeverity
}

// Graph is an explicit context object: no package-level global,
// constructed once by the event-loop bootstrap (or, in tests, once per
// test).
type Graph struct {
	logger logging.Logger
	bus    *notebus.Bus
	repo   domain.Repository

	vertices []*Vertex
	index    map[domain.ServicePath]Handle
}

// New builds an empty Graph over repo, posting propagation notes to bus.
func New(repo domain.Repository, bus *notebus.Bus, logger logging.Logger) *Graph {
	return &Graph{
		logger: logger,
		bus:    bus,
		repo:   repo,
		// Handle 0 is reserved so the zero value never aliases a vertex.
		vertices: make([]*Vertex, 1, 64),
		index:    make(map[domain.ServicePath]Handle),
	}
}

func (g *Graph) at(h Handle) *Vertex {
	return g.vertices[h]
}

// Lookup returns the vertex at path, if one has been installed.
func (g *Graph) Lookup(path domain.ServicePath) (*Vertex, bool) {
	h, ok := g.index[path]
	if !ok {
		return nil, false
	}
	return g.at(h), true
}

// All returns every installed vertex, for admin introspection via
// pkg/control's read-only HTTP surface. Order is the arena's insertion
// order; handle 0 is reserved and never included.
func (g *Graph) All() []*Vertex {
	return g.vertices[1:]
}

func (g *Graph) findOrAdd(path domain.ServicePath, kind VertexKind) *Vertex {
	if h, ok := g.index[path]; ok {
		return g.at(h)
	}
	h := Handle(len(g.vertices))
	v := &Vertex{Handle: h, Path: path, Kind: kind, State: Uninitialised}
	g.vertices = append(g.vertices, v)
	g.index[path] = h
	return v
}

func (g *Graph) addEdge(from, to Handle) {
	fromV, toV := g.at(from), g.at(to)
	for _, existing := range fromV.Dependencies {
		if existing == to {
			return
		}
	}
	fromV.Dependencies = append(fromV.Dependencies, to)
	toV.Dependents = append(toV.Dependents, from)
}
