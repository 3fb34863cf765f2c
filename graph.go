package lattice

import (
	"slices"
	"sync"
)

// DependencyGraph records the dependency edges observed while components of
// one scope were constructed.
type DependencyGraph struct {
	nodes map[ComponentKey]*node
	order []ComponentKey // Preserve first-seen order
	mu    sync.RWMutex
}

type node struct {
	key          ComponentKey
	dependencies []ComponentKey
}

// NewDependencyGraph creates a new dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[ComponentKey]*node),
	}
}

// AddNode adds a node if it does not exist yet.
func (g *DependencyGraph) AddNode(key ComponentKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNode(key)
}

func (g *DependencyGraph) addNode(key ComponentKey) *node {
	n, ok := g.nodes[key]
	if !ok {
		n = &node{key: key}
		g.nodes[key] = n
		g.order = append(g.order, key)
	}
	return n
}

// AddEdge records that from depends on to.
func (g *DependencyGraph) AddEdge(from, to ComponentKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.addNode(from)
	g.addNode(to)

	for _, dep := range n.dependencies {
		if dep == to {
			return
		}
	}

	n.dependencies = append(n.dependencies, to)
}

// GetDependencies returns the recorded dependencies of key.
func (g *DependencyGraph) GetDependencies(key ComponentKey) []ComponentKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if n, ok := g.nodes[key]; ok {
		out := make([]ComponentKey, len(n.dependencies))
		copy(out, n.dependencies)
		return out
	}

	return nil
}

// HasNode checks if a node exists in the graph.
func (g *DependencyGraph) HasNode(key ComponentKey) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.nodes[key]
	return ok
}

// TopologicalSort returns nodes in dependency order.
// Nodes without dependencies keep their first-seen order.
// Returns error if a cycle was recorded, which happens when a cycle was broken
// with a deferred handle.
func (g *DependencyGraph) TopologicalSort() ([]ComponentKey, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]ComponentKey, 0, len(g.nodes))

	err := g.walk(g.order, true, func(key ComponentKey) {
		result = append(result, key)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// teardownOrder orders keys so dependents come before their dependencies.
// Recorded cycles are cut at the back edge; keys is the commit order used as
// the tie-break.
func (g *DependencyGraph) teardownOrder(keys []ComponentKey) []ComponentKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	want := make(map[ComponentKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	deps := make([]ComponentKey, 0, len(keys))

	_ = g.walk(keys, false, func(key ComponentKey) {
		if want[key] {
			deps = append(deps, key)
		}
	})

	slices.Reverse(deps)

	return deps
}

// walk is a post-order DFS from roots calling emit as each key finishes. A
// back edge fails the walk when strict and is skipped otherwise. Callers hold
// the read lock.
func (g *DependencyGraph) walk(roots []ComponentKey, strict bool, emit func(ComponentKey)) error {
	visited := make(map[ComponentKey]bool)
	visiting := make(map[ComponentKey]bool)

	var visit func(key ComponentKey, path []ComponentKey) error
	visit = func(key ComponentKey, path []ComponentKey) error {
		if visited[key] {
			return nil
		}

		path = append(path, key)

		if visiting[key] {
			if !strict {
				return nil
			}
			return newCircularDependency(path[slices.Index(path, key):], "")
		}

		visiting[key] = true

		if n := g.nodes[key]; n != nil {
			for _, dep := range n.dependencies {
				if err := visit(dep, path); err != nil {
					return err
				}
			}
		}

		visiting[key] = false
		visited[key] = true
		emit(key)

		return nil
	}

	for _, key := range roots {
		if err := visit(key, nil); err != nil {
			return err
		}
	}

	return nil
}

// edges returns a printable adjacency list.
func (g *DependencyGraph) edges() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string][]string)
	for _, key := range g.order {
		n := g.nodes[key]
		if len(n.dependencies) == 0 {
			continue
		}
		deps := make([]string, len(n.dependencies))
		for i, d := range n.dependencies {
			deps[i] = d.String()
		}
		out[key.String()] = deps
	}

	return out
}
