package graph

import (
	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
)

// ProcessNote is the Graph Engine's half of the Note Bus contract:
// StateChange and AdminReq notes are consumed here; RestarterRequest
// notes are the Restarter Core's to consume.
func (g *Graph) ProcessNote(note domain.Note) {
	switch note.Kind {
	case domain.NoteKindStateChange:
		g.handleStateChange(note)
	case domain.NoteKindAdminReq:
		g.handleAdminReq(note)
	}
}

func (g *Graph) handleStateChange(note domain.Note) {
	v, ok := g.Lookup(note.Path)
	if !ok {
		g.logger.Warnf("StateChange for unknown path, path: %s", note.Path)
		return
	}

	switch note.StateChangeSub() {
	case domain.StateChangeOnline:
		v.State = Online
		g.notifyStart(v, note.Reason)

	case domain.StateChangeOffline:
		v.State = Offline
		wasToOffline := v.ToOffline
		v.ToOffline = false

		if wasToOffline {
			g.offlineDependencies(v)
			if v.ToDisable {
				g.bus.Post(domain.NewStateChange(v.Path, domain.StateChangeDisabled, note.Reason))
			}
		} else if g.CanComeUp(v) {
			g.bus.Post(domain.NewStateChange(v.Path, domain.StateChangeOnline, note.Reason))
		}

		g.notifyStop(v, note.Reason)

	case domain.StateChangeDisabled:
		v.ToOffline = false
		v.ToDisable = false
		v.State = Disabled
		g.notifyMisc(v)
	}
}

func (g *Graph) handleAdminReq(note domain.Note) {
	v, ok := g.Lookup(note.Path)
	if !ok {
		g.logger.Warnf("AdminReq for unknown path, path: %s", note.Path)
		return
	}

	switch note.AdminReqSub() {
	case domain.AdminReqDisable:
		v.ToDisable = true
		v.ToOffline = true
		v.IsEnabled = false
		g.notifyAdminDisable(v)
		g.sweepOfflineCandidates()

	case domain.AdminReqEnable:
		v.ToDisable = false
		v.ToOffline = false
		v.IsEnabled = true
		g.bus.Post(domain.NewStateChange(v.Path, domain.StateChangeOffline, domain.SeverityRestart))
	}
}

// notifyStart walks v's dependents, offering the vertex's restart_on (if
// the dependent reached is a group) as the propagated reason, and for
// every Instance dependent that can come up and is not yet running,
// requests it be brought online.
func (g *Graph) notifyStart(v *Vertex, reason domain.RestartSeverity) {
	visited := map[Handle]bool{v.Handle: true}
	g.notifyStartRecurse(v, reason, visited)
}

func (g *Graph) notifyStartRecurse(v *Vertex, reason domain.RestartSeverity, visited map[Handle]bool) {
	for _, h := range v.Dependents {
		if visited[h] {
			continue
		}
		visited[h] = true
		d := g.at(h)

		propagated := reason
		if d.Kind == VertexGroup {
			propagated = d.RestartOn
		}

		if d.Kind == VertexInstance && g.CanComeUp(d) && !g.isRunning(d) {
			g.bus.Post(domain.NewStateChange(d.Path, domain.StateChangeOnline, propagated))
		}

		g.notifyStartRecurse(d, propagated, visited)
	}
}

// notifyStop walks v's dependents the same way, but gates on restart_on:
// a group dependent whose restart_on severity is strictly less than
// reason cuts the traversal there, and ExcludeAll groups never propagate
// a stop downward at all. Landing on an Instance dependent requests it
// stop: restarts propagate only to dependents whose policy subscribes
// to at least this severity.
func (g *Graph) notifyStop(v *Vertex, reason domain.RestartSeverity) {
	visited := map[Handle]bool{v.Handle: true}
	g.notifyStopRecurse(v, reason, visited)
}

func (g *Graph) notifyStopRecurse(v *Vertex, reason domain.RestartSeverity, visited map[Handle]bool) {
	for _, h := range v.Dependents {
		if visited[h] {
			continue
		}
		d := g.at(h)
		if d.Kind == VertexGroup {
			if d.GroupKind == domain.GroupExcludeAll {
				continue
			}
			if d.RestartOn < reason {
				continue
			}
		}
		visited[h] = true

		if d.Kind == VertexInstance {
			g.bus.Post(domain.NewRestarterRequest(d.Path, domain.RestarterRequestStop, reason))
		}

		g.notifyStopRecurse(d, reason, visited)
	}
}

// notifyMisc re-probes dependents after a Disabled transition so any
// instance that is now satisfiable (the disabled vertex no longer blocks
// an ExcludeAll group, for instance) is brought up.
func (g *Graph) notifyMisc(v *Vertex) {
	visited := map[Handle]bool{v.Handle: true}
	var walk func(cur *Vertex)
	walk = func(cur *Vertex) {
		for _, h := range cur.Dependents {
			if visited[h] {
				continue
			}
			visited[h] = true
			d := g.at(h)
			if d.Kind == VertexInstance && g.CanComeUp(d) && !g.isRunning(d) {
				g.bus.Post(domain.NewStateChange(d.Path, domain.StateChangeOnline, domain.SeverityNone))
			}
			walk(d)
		}
	}
	walk(v)
}

// notifyAdminDisable marks every dependent's ToOffline, recursively, so a
// manual disable propagates a shutdown obligation downstream through
// consumers before sweepOfflineCandidates sweeps it into effect.
func (g *Graph) notifyAdminDisable(v *Vertex) {
	visited := map[Handle]bool{v.Handle: true}
	var walk func(cur *Vertex)
	walk = func(cur *Vertex) {
		for _, h := range cur.Dependents {
			if visited[h] {
				continue
			}
			visited[h] = true
			d := g.at(h)
			if d.Kind == VertexInstance {
				d.ToOffline = true
			}
			walk(d)
		}
	}
	walk(v)
}

// offlineDependencies propagates offlining downward through v's own
// dependencies (vtx_offline_dependency): prerequisites that were only
// being kept up for v, were themselves marked ToOffline, and can now go
// down complete their shutdown.
func (g *Graph) offlineDependencies(v *Vertex) {
	for _, h := range v.Dependencies {
		d := g.at(h)
		if d.Kind != VertexInstance {
			g.offlineDependencies(d)
			continue
		}
		if d.ToOffline && g.CanGoDown(d) && g.isRunning(d) {
			g.bus.Post(domain.NewRestarterRequest(d.Path, domain.RestarterRequestStop, domain.SeverityNone))
		}
	}
}

// sweepOfflineCandidates walks the entire graph and, for each vertex
// marked ToOffline whose subtree reports CanGoDown, emits an offline
// state-change -- the AdminReq(Disable) handler's graph-wide sweep. A
// running instance is first stopped through the Restarter Core, whose
// own Offline state-change then completes the transition.
func (g *Graph) sweepOfflineCandidates() {
	for _, v := range g.vertices[1:] {
		if v.Kind != VertexInstance || !v.ToOffline || !g.CanGoDown(v) {
			continue
		}
		if g.isRunning(v) {
			g.bus.Post(domain.NewRestarterRequest(v.Path, domain.RestarterRequestStop, domain.SeverityNone))
		} else {
			g.bus.Post(domain.NewStateChange(v.Path, domain.StateChangeOffline, domain.SeverityNone))
		}
	}
}
