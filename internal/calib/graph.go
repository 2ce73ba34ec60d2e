// Package calib implements the Calibration DAG Scheduler (spec.md
// §4.8): a directed acyclic graph of calibration methods, a Checker
// that periodically re-validates every (group, method) pair, and a
// Calibrator that walks the DAG toward a method's parent whenever a
// method stays failed. Grounded on the original's
// quark/dag/{graph.py,scheduler.py,executor.py}: the Python
// `networkx.DiGraph` becomes a small hand-rolled adjacency list (no
// pack example ships a graph library), `BackgroundScheduler`'s
// interval job becomes a `time.Ticker`-driven goroutine, and the
// blocking `queue.Queue` handoff becomes a bounded Go channel.
package calib

// Graph is a directed acyclic graph of calibration method names. Nodes
// are recorded in first-seen order so callers can iterate methods the
// same way the original's DAG level would (spec.md §4.8 "methods at
// the same DAG level are executed in node insertion order").
type Graph struct {
	order    []string
	seen     map[string]bool
	parents  map[string][]string
	children map[string][]string
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		seen:     map[string]bool{},
		parents:  map[string][]string{},
		children: map[string][]string{},
	}
}

// AddEdge records a "to fails -> retry as from" edge (the original's
// `dag['task']['edges']`: `[('S21','Spectrum'), ('Spectrum','PowerRabi'), ...]`).
// from is to's parent: a Calibrator retrying to should walk back to from.
func (g *Graph) AddEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
}

func (g *Graph) addNode(n string) {
	if g.seen[n] {
		return
	}
	g.seen[n] = true
	g.order = append(g.order, n)
}

// Nodes returns every method name in first-seen order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Parents returns method's immediate predecessors (the original's
// `TaskManager.parents`, wrapping `DiGraph.predecessors`).
func (g *Graph) Parents(method string) []string {
	return append([]string(nil), g.parents[method]...)
}

// Children returns method's immediate successors (the original's
// `TaskManager.children`).
func (g *Graph) Children(method string) []string {
	return append([]string(nil), g.children[method]...)
}
