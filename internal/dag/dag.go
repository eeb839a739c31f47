package dag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/petrijr/orchestra/pkg/api"
)

// Graph is a directed graph in which an edge dep -> node means node depends
// on dep. Insertion order is remembered and used to break ties.
type Graph struct {
	order []string
	index map[string]int
	deps  map[string][]string
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		deps:  make(map[string][]string),
	}
}

// AddNode adds a node with the given dependencies. Adding an existing node
// appends any new dependencies to it. Duplicate dependencies are dropped.
func (g *Graph) AddNode(id string, deps ...string) {
	if _, ok := g.index[id]; !ok {
		g.index[id] = len(g.order)
		g.order = append(g.order, id)
	}
	existing := g.deps[id]
	for _, d := range deps {
		if !slices.Contains(existing, d) {
			existing = append(existing, d)
		}
	}
	g.deps[id] = existing
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes returns node ids in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Dependencies returns the direct dependencies of id.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Missing returns, for every node, the dependencies that are not nodes of
// the graph. Nodes without missing dependencies are omitted.
func (g *Graph) Missing() map[string][]string {
	out := make(map[string][]string)
	for _, id := range g.order {
		for _, d := range g.deps[id] {
			if !g.Has(d) {
				out[id] = append(out[id], d)
			}
		}
	}
	return out
}

// Dependents returns the reverse adjacency list: for each node, the nodes
// that directly depend on it, in insertion order.
func (g *Graph) Dependents() map[string][]string {
	out := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		for _, d := range g.deps[id] {
			if g.Has(d) {
				out[d] = append(out[d], id)
			}
		}
	}
	return out
}

// CycleError reports a dependency cycle. Path starts and ends with the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return api.ErrCyclicDependency
}

// DetectCycles checks the graph for cycles using a depth-first visit.
// Edges to unknown nodes are ignored. It returns a *CycleError describing
// the first cycle found.
func (g *Graph) DetectCycles() error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.order))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case inProgress:
			// id is on the current stack; slice the cycle out of it.
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), id)
			return &CycleError{Path: path}
		}

		state[id] = inProgress
		stack = append(stack, id)
		for _, d := range g.deps[id] {
			if !g.Has(d) {
				continue
			}
			if err := visit(d); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// TopologicalOrder returns the nodes so that every dependency precedes its
// dependents, using Kahn's algorithm: track the in-degree of every node,
// repeatedly take a zero in-degree node and decrement its dependents.
// Among simultaneously ready nodes the earliest inserted wins.
// Edges to unknown nodes are ignored.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := g.InDegrees()
	dependents := g.Dependents()

	var ready []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = g.insertByIndex(ready, dep)
			}
		}
	}

	if len(order) != len(g.order) {
		if err := g.DetectCycles(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: graph is not acyclic", api.ErrCyclicDependency)
	}
	return order, nil
}

// InDegrees returns the number of known dependencies of every node.
func (g *Graph) InDegrees() map[string]int {
	out := make(map[string]int, len(g.order))
	for _, id := range g.order {
		n := 0
		for _, d := range g.deps[id] {
			if g.Has(d) {
				n++
			}
		}
		out[id] = n
	}
	return out
}

// Descendants returns every node that transitively depends on id, in
// insertion order.
func (g *Graph) Descendants(id string) []string {
	dependents := g.Dependents()
	seen := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range dependents[cur] {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}

	var out []string
	for _, n := range g.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}

// insertByIndex inserts id into ready keeping it sorted by insertion index.
func (g *Graph) insertByIndex(ready []string, id string) []string {
	pos := len(ready)
	for i, r := range ready {
		if g.index[id] < g.index[r] {
			pos = i
			break
		}
	}
	ready = append(ready, "")
	copy(ready[pos+1:], ready[pos:])
	ready[pos] = id
	return ready
}
