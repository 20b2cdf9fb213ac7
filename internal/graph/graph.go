package graph

import "sort"

// Edge is an ordered pair: Task depends on (is blocked by) Blocker.
type Edge struct {
	Task    string `json:"task"`
	Blocker string `json:"blocker"`
}

// Graph holds the task dependency relation built from a document.
// It is a DAG by construction: every edge points strictly backward in
// document order.
type Graph struct {
	blockers map[string][]string
	order    []string // task IDs in document order
}

func newGraph() *Graph {
	return &Graph{blockers: make(map[string][]string)}
}

func (g *Graph) addEdge(taskID, blockerID string) {
	for _, b := range g.blockers[taskID] {
		if b == blockerID {
			return
		}
	}
	g.blockers[taskID] = append(g.blockers[taskID], blockerID)
}

// Blockers returns the direct blockers of a task, in insertion order.
// It is a pure lookup; no recomputation happens.
func (g *Graph) Blockers(taskID string) []string {
	return g.blockers[taskID]
}

// HasBlockers reports whether the task depends on any other task
func (g *Graph) HasBlockers(taskID string) bool {
	return len(g.blockers[taskID]) > 0
}

// Tasks returns all task IDs in document order
func (g *Graph) Tasks() []string {
	return g.order
}

// Edges returns every dependency edge, ordered by task then blocker
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, taskID := range g.order {
		bs := append([]string(nil), g.blockers[taskID]...)
		sort.Strings(bs)
		for _, b := range bs {
			edges = append(edges, Edge{Task: taskID, Blocker: b})
		}
	}
	return edges
}

// EdgeCount returns the total number of dependency edges
func (g *Graph) EdgeCount() int {
	n := 0
	for _, bs := range g.blockers {
		n += len(bs)
	}
	return n
}
