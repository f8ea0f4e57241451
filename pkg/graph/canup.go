package graph

// CanComeUp is the "can come up" predicate for an instance: enabled,
// not on its way offline or disabled, and every dependency group it
// owns is fully (recursively) satisfied.
func (g *Graph) CanComeUp(v *Vertex) bool {
	if v.Kind != VertexInstance {
		return false
	}
	if !v.IsEnabled || v.ToOffline || v.ToDisable {
		return false
	}
	return g.groupsSatisfiable(v, true) == Satisfied
}

// isRunning reports whether v's lifecycle state counts as up.
func (g *Graph) isRunning(v *Vertex) bool {
	return v.State == Online || v.State == Degraded
}

// CanGoDown is the "can go down" predicate: every transitive dependent
// instance is either already on its way offline (ToOffline) or not
// running. The root vertex itself is exempt from that "must already be
// stopping" requirement.
func (g *Graph) CanGoDown(v *Vertex) bool {
	visited := map[Handle]bool{v.Handle: true}
	queue := []Handle{v.Handle}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curV := g.at(cur)
		if cur != v.Handle && curV.Kind == VertexInstance {
			if g.isRunning(curV) && !curV.ToOffline {
				return false
			}
		}
		for _, h := range curV.Dependents {
			if visited[h] {
				continue
			}
			visited[h] = true
			queue = append(queue, h)
		}
	}
	return true
}
