// Package dag holds the dependency graph of an execution plan and the
// builder that derives it from requested targets. The graph is built once,
// single-threaded, and treated as read-only during execution; node run-state
// lives on the nodes themselves.
package dag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/flowmake/internal/node"
)

// Graph is a directed acyclic graph of job nodes and leaf file nodes. An
// edge from A to B means B consumes an output of A.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]*node.Node
	deps       map[string]map[string]*node.Node
	dependents map[string]map[string]*node.Node
	// producers maps every concrete path the plan knows about to the node
	// that provides it (the producing job, or the leaf file itself).
	producers map[string]*node.Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*node.Node),
		deps:       make(map[string]map[string]*node.Node),
		dependents: make(map[string]map[string]*node.Node),
		producers:  make(map[string]*node.Node),
	}
}

// AddNode inserts a node. Adding the same node twice does nothing.
func (g *Graph) AddNode(n *node.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[n.ID()]; ok {
		return
	}
	g.nodes[n.ID()] = n
	g.deps[n.ID()] = make(map[string]*node.Node)
	g.dependents[n.ID()] = make(map[string]*node.Node)
}

// AddEdge records that toID depends on fromID. Both nodes must exist and a
// node cannot depend on itself. Adding an existing edge is a no-op.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s", fromID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	g.deps[toID][fromID] = from
	g.dependents[fromID][toID] = to
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*node.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Producer returns the node providing the given concrete path.
func (g *Graph) Producer(path string) (*node.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.producers[path]
	return n, ok
}

// Nodes returns all nodes, sorted by ID for deterministic iteration.
func (g *Graph) Nodes() []*node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*node.Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the nodes the given node depends on.
func (g *Graph) Dependencies(id string) ([]*node.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.deps[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedNodes(m), nil
}

// Dependents returns the nodes that depend on the given node.
func (g *Graph) Dependents(id string) ([]*node.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.dependents[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedNodes(m), nil
}

// InitCounters initializes every node's dependency and consumer counters
// from the final edge sets. Called once, after building.
func (g *Graph) InitCounters() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, n := range g.nodes {
		n.SetDepCount(int32(len(g.deps[id])))
		consumers := 0
		for _, dep := range g.dependents[id] {
			if dep.Kind == node.JobNode {
				consumers++
			}
		}
		n.SetConsumerCount(int32(consumers))
	}
}

// DetectCycles validates acyclicity with a three-color depth-first search.
// The builder's resolution stack already rejects cycles target-by-target;
// this is the whole-graph check run before execution starts.
func (g *Graph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return &CycleError{Path: append(path, id)}
		}
		temporary[id] = true
		for depID := range g.dependents[id] {
			if err := visit(depID, append(path, id)); err != nil {
				return err
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for id := range g.nodes {
		if !permanent[id] {
			if err := visit(id, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopoOrder returns the nodes in a deterministic topological order
// (Kahn's algorithm with lexicographic tie-break).
func (g *Graph) TopoOrder() ([]*node.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.deps[id])
	}

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]*node.Node, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[id])

		var unlocked []string
		for depID := range g.dependents[id] {
			indegree[depID]--
			if indegree[depID] == 0 {
				unlocked = append(unlocked, depID)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for id, d := range indegree {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &CycleError{Path: stuck}
	}
	return order, nil
}

func sortedNodes(m map[string]*node.Node) []*node.Node {
	out := make([]*node.Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
