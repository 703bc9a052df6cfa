package graph

import (
	"github.com/xraph/weave"
)

// Sort returns a total ordering of nodes consistent with every
// connection: each connection's FromNodeID precedes its ToNodeID.
//
// With no connections there is no ordering constraint and the input
// slice is returned unmodified. Otherwise nodes that appear in no
// connection are added to the vertex set as synthetic self-references
// so they survive the sort regardless of dependency-graph
// connectivity. Ties among mutually independent nodes break by
// original declaration order, so repeated sorts of the same graph are
// deterministic and replays see the same schedule.
//
// A cycle (including a self-loop connection) fails with weave.ErrCycle
// and no partial result. Ordered ids with no matching node record are
// silently dropped, and duplicate ids are deduplicated preserving
// first-seen order.
func Sort(nodes []Node, connections []Connection) ([]Node, error) {
	if len(connections) == 0 {
		return nodes, nil
	}

	// Declaration order decides ties; unknown ids (connection endpoints
	// with no node record) sort after all declared nodes.
	rank := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, ok := rank[n.ID]; !ok {
			rank[n.ID] = i
		}
	}
	next := len(nodes)
	ensure := func(nodeID string) {
		if _, ok := rank[nodeID]; !ok {
			rank[nodeID] = next
			next++
		}
	}

	// Vertex set: every connection endpoint, plus a synthetic
	// self-reference for each node no connection touches.
	vertices := make([]string, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	addVertex := func(nodeID string) {
		if _, ok := seen[nodeID]; ok {
			return
		}
		seen[nodeID] = struct{}{}
		ensure(nodeID)
		vertices = append(vertices, nodeID)
	}

	indegree := make(map[string]int)
	successors := make(map[string][]string)
	for _, c := range connections {
		addVertex(c.FromNodeID)
		addVertex(c.ToNodeID)
		successors[c.FromNodeID] = append(successors[c.FromNodeID], c.ToNodeID)
		indegree[c.ToNodeID]++
	}
	for _, n := range nodes {
		addVertex(n.ID)
	}

	// Kahn's algorithm, always draining the ready vertex with the
	// lowest declaration rank.
	sorted := make([]string, 0, len(vertices))
	ready := make([]string, 0, len(vertices))
	for _, v := range vertices {
		if indegree[v] == 0 {
			ready = append(ready, v)
		}
	}

	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if rank[ready[i]] < rank[ready[best]] {
				best = i
			}
		}
		v := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		sorted = append(sorted, v)

		for _, succ := range successors[v] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(sorted) != len(vertices) {
		return nil, weave.ErrCycle
	}

	// Map surviving ids back to node records, deduplicating while
	// preserving first-seen order. Ids with no record are dropped.
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if _, ok := byID[n.ID]; !ok {
			byID[n.ID] = n
		}
	}

	result := make([]Node, 0, len(nodes))
	emitted := make(map[string]struct{}, len(sorted))
	for _, nodeID := range sorted {
		if _, ok := emitted[nodeID]; ok {
			continue
		}
		emitted[nodeID] = struct{}{}
		if n, ok := byID[nodeID]; ok {
			result = append(result, n)
		}
	}

	return result, nil
}
