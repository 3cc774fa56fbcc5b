package dag

// Descendants returns the nodes reachable from n through outgoing edges, in
// depth-first pre-order, each at most once. n itself is not included.
//
// If prune is non-nil, nodes for which it returns true are left out together
// with every node that is only reachable through them.
func (g *Graph[NodeType]) Descendants(n NodeType, prune func(NodeType) bool) []NodeType {
	var (
		out     []NodeType
		visited = nodeSet[NodeType]{n: {}}
		stack   = pushChildren(nil, g.children[n])
	)

	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited.Contains(next) {
			continue
		}
		visited.Add(next)

		if prune != nil && prune(next) {
			continue
		}
		out = append(out, next)
		stack = pushChildren(stack, g.children[next])
	}
	return out
}

// pushChildren pushes children in reverse so that they are popped in
// insertion order.
func pushChildren[NodeType Node](stack, children []NodeType) []NodeType {
	for i := len(children) - 1; i >= 0; i-- {
		stack = append(stack, children[i])
	}
	return stack
}
