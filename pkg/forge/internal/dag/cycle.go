package dag

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

// FindCycle searches the graph for a cycle using a depth-first traversal that
// marks nodes as in progress while their descendants are being visited.
// Reaching an in-progress node again means the graph contains a cycle.
//
// FindCycle returns the nodes on the first cycle found, starting and ending
// with the same node, or nil if the graph is acyclic. The search visits nodes
// in insertion order, so the reported cycle is stable for a given graph.
func (g *Graph[NodeType]) FindCycle() []NodeType {
	var (
		state = make(map[NodeType]visitState, len(g.order))
		path  []NodeType
	)

	var visit func(n NodeType) []NodeType
	visit = func(n NodeType) []NodeType {
		state[n] = inProgress
		path = append(path, n)

		for _, child := range g.children[n] {
			switch state[child] {
			case inProgress:
				return closeCycle(path, child)
			case unvisited:
				if cycle := visit(child); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		state[n] = done
		return nil
	}

	for _, n := range g.order {
		if state[n] != unvisited {
			continue
		}
		if cycle := visit(n); cycle != nil {
			return cycle
		}
	}
	return nil
}

// closeCycle trims path down to the segment starting at back, the target of
// the back edge, and appends back again to close the loop.
func closeCycle[NodeType Node](path []NodeType, back NodeType) []NodeType {
	for i, n := range path {
		if n == back {
			cycle := make([]NodeType, 0, len(path)-i+1)
			cycle = append(cycle, path[i:]...)
			return append(cycle, back)
		}
	}
	return nil
}

// TopologicalOrder returns every node such that each parent precedes all of
// its children. Nodes without a relative ordering keep their insertion order.
// TopologicalOrder returns false if the graph contains a cycle.
func (g *Graph[NodeType]) TopologicalOrder() ([]NodeType, bool) {
	indegree := make(map[NodeType]int, len(g.order))
	for _, n := range g.order {
		indegree[n] = len(g.parents[n])
	}

	queue := g.Roots()
	out := make([]NodeType, 0, len(g.order))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, n)

		for _, child := range g.children[n] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	return out, len(out) == len(g.order)
}
