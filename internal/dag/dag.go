// Package dag builds and validates the execution graph for a workflow
// version, grounded on internal/worker/processor/dag.go (level
// computation, deterministic ordering) and internal/worker/executor/dag.go
// (an alternate residual in-degree validation style), merged here and
// extended with three-colour DFS cycle detection.
package dag

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

var (
	ErrNoEntry         = errors.New("dag: workflow has no entry node")
	ErrCycleDetected   = errors.New("dag: cycle detected")
	ErrInvalidEdge     = errors.New("dag: edge references an unknown node")
	ErrDuplicateNodeID = errors.New("dag: duplicate node id")
)

// Definition mirrors the editor JSON shape: the raw node/edge lists that
// make up a workflow version, before graph analysis.
type Definition struct {
	Nodes []domain.WorkflowNode
	Edges []domain.WorkflowEdge
}

// EdgeInfo generalizes the teacher's ConnectionRef with condition-node
// branch metadata.
type EdgeInfo struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	Condition    string
}

// Graph is the validated, analyzed form of a Definition.
type Graph struct {
	Nodes        map[string]domain.WorkflowNode
	Edges        []EdgeInfo
	Forward      map[string][]EdgeInfo // source -> outgoing edges
	Reverse      map[string][]EdgeInfo // target -> incoming edges
	EntryNodes   []string
	ExitNodes    []string
	Order        []string // deterministic topological order
	Levels       map[string]int
}

// Build validates def and produces a Graph, or one of ErrNoEntry,
// ErrCycleDetected, ErrInvalidEdge, ErrDuplicateNodeID.
func Build(def Definition) (*Graph, error) {
	g := &Graph{
		Nodes:   make(map[string]domain.WorkflowNode, len(def.Nodes)),
		Forward: make(map[string][]EdgeInfo),
		Reverse: make(map[string][]EdgeInfo),
		Levels:  make(map[string]int),
	}

	for _, n := range def.Nodes {
		if _, dup := g.Nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}
		g.Nodes[n.ID] = n
	}

	for _, e := range def.Edges {
		if _, ok := g.Nodes[e.Source]; !ok {
			return nil, fmt.Errorf("%w: source %s", ErrInvalidEdge, e.Source)
		}
		if _, ok := g.Nodes[e.Target]; !ok {
			return nil, fmt.Errorf("%w: target %s", ErrInvalidEdge, e.Target)
		}
		info := EdgeInfo{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			Condition:    e.Condition,
		}
		g.Edges = append(g.Edges, info)
		g.Forward[e.Source] = append(g.Forward[e.Source], info)
		g.Reverse[e.Target] = append(g.Reverse[e.Target], info)
	}

	for id := range g.Nodes {
		if len(g.Reverse[id]) == 0 {
			g.EntryNodes = append(g.EntryNodes, id)
		}
		if len(g.Forward[id]) == 0 {
			g.ExitNodes = append(g.ExitNodes, id)
		}
	}
	sort.Strings(g.EntryNodes)
	sort.Strings(g.ExitNodes)

	if err := detectCycle(g); err != nil {
		return nil, err
	}

	if len(g.EntryNodes) == 0 && len(g.Nodes) > 0 {
		return nil, ErrNoEntry
	}

	order, err := topologicalOrder(g)
	if err != nil {
		return nil, err
	}
	g.Order = order

	computeLevels(g)

	return g, nil
}

// colour states for the three-colour DFS cycle check.
const (
	white = 0 // unvisited
	grey  = 1 // on current recursion stack
	black = 2 // fully processed
)

// detectCycle runs a DFS marking nodes white/grey/black; encountering a
// grey node means a back edge exists, i.e. a cycle — the Kahn's-algorithm
// residual-queue check the teacher uses elsewhere only reports that a
// cycle exists somewhere, not via an explicit recursion-stack check, so
// this is written fresh in the three-colour style the spec requires.
func detectCycle(g *Graph) error {
	colour := make(map[string]int, len(g.Nodes))

	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) error
	visit = func(id string) error {
		colour[id] = grey
		edges := g.Forward[id]
		sorted := make([]EdgeInfo, len(edges))
		copy(sorted, edges)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Target < sorted[j].Target })

		for _, e := range sorted {
			switch colour[e.Target] {
			case grey:
				return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, id, e.Target)
			case white:
				if err := visit(e.Target); err != nil {
					return err
				}
			}
		}
		colour[id] = black
		return nil
	}

	for _, id := range ids {
		if colour[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// topologicalOrder produces a deterministic order via Kahn's algorithm
// with a sorted-ready-set tie-break, matching the teacher's
// deterministic-queue-sort convention in dag.go's TopologicalSort.
func topologicalOrder(g *Graph) ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		inDegree[id] = len(g.Reverse[id])
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		targets := make([]string, 0, len(g.Forward[id]))
		for _, e := range g.Forward[id] {
			targets = append(targets, e.Target)
		}
		sort.Strings(targets)
		for _, t := range targets {
			inDegree[t]--
			if inDegree[t] == 0 {
				ready = append(ready, t)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// computeLevels assigns levels[v] = 1 + max(levels[u]) over incoming
// edges, 0 for entry nodes, walked in topological order so every
// predecessor's level is already final.
func computeLevels(g *Graph) {
	for _, id := range g.Order {
		max := -1
		for _, e := range g.Reverse[id] {
			if l := g.Levels[e.Source]; l > max {
				max = l
			}
		}
		g.Levels[id] = max + 1
	}
}

// OutgoingConditionHandles returns the set of SourceHandle values used on
// id's outgoing edges, sorted. The scheduler does not call it; it matches
// a condition node's verdict against each edge's SourceHandle directly.
func (g *Graph) OutgoingConditionHandles(id string) []string {
	seen := map[string]struct{}{}
	var handles []string
	for _, e := range g.Forward[id] {
		if e.SourceHandle == "" {
			continue
		}
		if _, ok := seen[e.SourceHandle]; ok {
			continue
		}
		seen[e.SourceHandle] = struct{}{}
		handles = append(handles, e.SourceHandle)
	}
	sort.Strings(handles)
	return handles
}
