// SPDX-License-Identifier: MPL-2.0

// Package dag provides directed acyclic graph operations for topological sorting,
// cycle detection, and dependency closure. It is used to validate the task table
// and to compute the ordered closure of an entry point before anything runs.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle is one closed path through the graph: it starts and ends with
		// the same node and follows edge direction.
		Cycle []string
	}

	// UnknownNodeError is returned when a closure is requested for a node that
	// was never added to the graph.
	UnknownNodeError struct {
		Node string
	}

	// Graph is a directed graph whose nodes are strings. An edge from A to B
	// means A must complete before B starts. Nodes keep insertion order, which
	// makes every traversal deterministic.
	Graph struct {
		index map[string]int
		names []string
		succ  [][]int
		pred  [][]int
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.Node)
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	g.id(name)
}

// AddEdge adds a directed edge from -> to, meaning "from" must run before "to".
// Both nodes are added if needed.
func (g *Graph) AddEdge(from, to string) {
	f, t := g.id(from), g.id(to)
	g.succ[f] = append(g.succ[f], t)
	g.pred[t] = append(g.pred[t], f)
}

// Has reports whether the node exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

func (g *Graph) id(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	i := len(g.names)
	g.index[name] = i
	g.names = append(g.names, name)
	g.succ = append(g.succ, nil)
	g.pred = append(g.pred, nil)
	return i
}

// Closure returns the subgraph made of the given roots and everything that must
// run before them, transitively. Insertion order of the original graph is kept.
func (g *Graph) Closure(roots ...string) (*Graph, error) {
	keep := make([]bool, len(g.names))
	var stack []int
	for _, root := range roots {
		i, ok := g.index[root]
		if !ok {
			return nil, &UnknownNodeError{Node: root}
		}
		stack = append(stack, i)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !keep[i] {
			keep[i] = true
			stack = append(stack, g.pred[i]...)
		}
	}

	sub := New()
	for i, name := range g.names {
		if keep[i] {
			sub.AddNode(name)
		}
	}
	for i, name := range g.names {
		if !keep[i] {
			continue
		}
		for _, j := range g.succ[i] {
			if keep[j] {
				sub.AddEdge(name, g.names[j])
			}
		}
	}
	return sub, nil
}

// TopologicalSort returns a valid execution order using Kahn's algorithm.
// Nodes that become ready together keep their insertion order. A graph with
// a cycle yields a *CycleError naming one of its cycles.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.names) == 0 {
		return nil, nil
	}

	indegree := make([]int, len(g.names))
	for i := range g.names {
		indegree[i] = len(g.pred[i])
	}
	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(g.names))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, g.names[i])
		for _, j := range g.succ[i] {
			if indegree[j]--; indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(order) < len(g.names) {
		return nil, &CycleError{Cycle: g.cycle(indegree)}
	}
	return order, nil
}

// cycle extracts a closed path from the nodes Kahn's algorithm left behind.
// Every such node has a predecessor that was also left behind, so walking
// predecessors must revisit a node.
func (g *Graph) cycle(indegree []int) []string {
	start := slices.IndexFunc(indegree, func(d int) bool { return d > 0 })
	pos := map[int]int{}
	var walk []int
	for i := start; ; {
		if p, seen := pos[i]; seen {
			walk = walk[p:]
			break
		}
		pos[i] = len(walk)
		walk = append(walk, i)
		for _, p := range g.pred[i] {
			if indegree[p] > 0 {
				i = p
				break
			}
		}
	}

	// walk follows edges backwards.
	path := make([]string, 0, len(walk)+1)
	for k := len(walk) - 1; k >= 0; k-- {
		path = append(path, g.names[walk[k]])
	}
	return append(path, path[0])
}
