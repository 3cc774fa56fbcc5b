// Package dag provides a generic directed acyclic graph used to hold task
// prerequisite relationships.
//
// Edges point from a parent to a child. Callers decide what the direction
// means; the forge package uses Parent for a prerequisite and Child for the
// task that depends on it.
package dag

import (
	"errors"
	"fmt"
)

// Node is a vertex in a Graph.
type Node interface {
	comparable
}

// Edge is a directed connection from Parent to Child.
type Edge[NodeType Node] struct {
	Parent, Child NodeType
}

type nodeSet[NodeType Node] map[NodeType]struct{}

func (s nodeSet[NodeType]) Add(n NodeType) { s[n] = struct{}{} }

func (s nodeSet[NodeType]) Contains(n NodeType) bool {
	_, ok := s[n]
	return ok
}

// Graph is a directed graph of nodes. The zero value is ready for use.
//
// Nodes are reported in insertion order by every method that returns more
// than one node, so that traversals are deterministic.
type Graph[NodeType Node] struct {
	order    []NodeType
	nodes    nodeSet[NodeType]
	parents  map[NodeType][]NodeType
	children map[NodeType][]NodeType
}

func (g *Graph[NodeType]) init() {
	if g.nodes == nil {
		g.nodes = make(nodeSet[NodeType])
		g.parents = make(map[NodeType][]NodeType)
		g.children = make(map[NodeType][]NodeType)
	}
}

// Add adds n to the graph. Add is a no-op if n already exists.
func (g *Graph[NodeType]) Add(n NodeType) {
	g.init()
	if g.nodes.Contains(n) {
		return
	}
	g.nodes.Add(n)
	g.order = append(g.order, n)
}

// AddEdge adds a directed edge between two existing nodes. AddEdge returns an
// error if either node is missing or if the edge points a node at itself.
// Adding an edge that already exists is a no-op.
func (g *Graph[NodeType]) AddEdge(e Edge[NodeType]) error {
	g.init()
	switch {
	case !g.nodes.Contains(e.Parent):
		return fmt.Errorf("parent %v does not exist in graph", e.Parent)
	case !g.nodes.Contains(e.Child):
		return fmt.Errorf("child %v does not exist in graph", e.Child)
	case e.Parent == e.Child:
		return errors.New("parent and child must be different nodes")
	}

	for _, existing := range g.children[e.Parent] {
		if existing == e.Child {
			return nil
		}
	}

	g.children[e.Parent] = append(g.children[e.Parent], e.Child)
	g.parents[e.Child] = append(g.parents[e.Child], e.Parent)
	return nil
}

// Len returns the number of nodes in the graph.
func (g *Graph[NodeType]) Len() int { return len(g.order) }

// Contains reports whether n is part of the graph.
func (g *Graph[NodeType]) Contains(n NodeType) bool { return g.nodes.Contains(n) }

// Parents returns the parents of n.
func (g *Graph[NodeType]) Parents(n NodeType) []NodeType { return g.parents[n] }

// Children returns the children of n.
func (g *Graph[NodeType]) Children(n NodeType) []NodeType { return g.children[n] }

// Roots returns all nodes that have no parents.
func (g *Graph[NodeType]) Roots() []NodeType {
	var roots []NodeType
	for _, n := range g.order {
		if len(g.parents[n]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Leaves returns all nodes that have no children.
func (g *Graph[NodeType]) Leaves() []NodeType {
	var leaves []NodeType
	for _, n := range g.order {
		if len(g.children[n]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}
