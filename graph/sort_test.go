package graph_test

import (
	"errors"
	"testing"

	"github.com/xraph/weave"
	"github.com/xraph/weave/graph"
)

func node(nodeID string) graph.Node {
	return graph.Node{ID: nodeID, Type: graph.NodeHTTPRequest}
}

func conn(from, to string) graph.Connection {
	return graph.Connection{FromNodeID: from, ToNodeID: to}
}

func position(t *testing.T, sorted []graph.Node, nodeID string) int {
	t.Helper()
	for i, n := range sorted {
		if n.ID == nodeID {
			return i
		}
	}
	t.Fatalf("node %q missing from sorted output %v", nodeID, ids(sorted))
	return -1
}

func ids(sorted []graph.Node) []string {
	out := make([]string, len(sorted))
	for i, n := range sorted {
		out[i] = n.ID
	}
	return out
}

func TestSortNoConnectionsPreservesOrder(t *testing.T) {
	nodes := []graph.Node{node("c"), node("a"), node("b")}

	sorted, err := graph.Sort(nodes, nil)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if len(sorted) != 3 {
		t.Fatalf("len = %d, want 3", len(sorted))
	}
	for i, n := range nodes {
		if sorted[i].ID != n.ID {
			t.Errorf("sorted[%d] = %q, want %q", i, sorted[i].ID, n.ID)
		}
	}
}

func TestSortRespectsDependencies(t *testing.T) {
	nodes := []graph.Node{node("c"), node("b"), node("a")}
	connections := []graph.Connection{conn("a", "b"), conn("b", "c")}

	sorted, err := graph.Sort(nodes, connections)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}

	for _, c := range connections {
		if position(t, sorted, c.FromNodeID) >= position(t, sorted, c.ToNodeID) {
			t.Errorf("connection %s→%s violated in %v", c.FromNodeID, c.ToNodeID, ids(sorted))
		}
	}
}

func TestSortIncludesIsolatedNodeOnce(t *testing.T) {
	nodes := []graph.Node{node("a"), node("b"), node("island")}
	connections := []graph.Connection{conn("a", "b")}

	sorted, err := graph.Sort(nodes, connections)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}

	count := 0
	for _, n := range sorted {
		if n.ID == "island" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("isolated node appeared %d times, want 1", count)
	}
	if len(sorted) != 3 {
		t.Errorf("len = %d, want 3", len(sorted))
	}
}

func TestSortTwoIsolatedNodes(t *testing.T) {
	nodes := []graph.Node{node("x"), node("y"), node("a"), node("b")}
	connections := []graph.Connection{conn("a", "b")}

	sorted, err := graph.Sort(nodes, connections)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if len(sorted) != 4 {
		t.Fatalf("len = %d, want 4: %v", len(sorted), ids(sorted))
	}
	position(t, sorted, "x")
	position(t, sorted, "y")
}

func TestSortCycle(t *testing.T) {
	nodes := []graph.Node{node("a"), node("b")}
	connections := []graph.Connection{conn("a", "b"), conn("b", "a")}

	sorted, err := graph.Sort(nodes, connections)
	if !errors.Is(err, weave.ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
	if sorted != nil {
		t.Errorf("expected no partial result, got %v", ids(sorted))
	}
}

func TestSortSelfLoopIsCycle(t *testing.T) {
	nodes := []graph.Node{node("a"), node("b")}
	connections := []graph.Connection{conn("a", "a"), conn("a", "b")}

	if _, err := graph.Sort(nodes, connections); !errors.Is(err, weave.ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
}

func TestSortDropsUnknownIDs(t *testing.T) {
	nodes := []graph.Node{node("a"), node("b")}
	connections := []graph.Connection{conn("a", "b"), conn("b", "ghost")}

	sorted, err := graph.Sort(nodes, connections)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if len(sorted) != 2 {
		t.Fatalf("len = %d, want 2 (ghost dropped): %v", len(sorted), ids(sorted))
	}
}

func TestSortDeterministicTieBreak(t *testing.T) {
	// d, c, and the chain head a are all mutually independent; ties
	// must resolve to declaration order on every invocation.
	nodes := []graph.Node{node("d"), node("c"), node("a"), node("b")}
	connections := []graph.Connection{conn("a", "b")}

	first, err := graph.Sort(nodes, connections)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	for range 10 {
		again, sortErr := graph.Sort(nodes, connections)
		if sortErr != nil {
			t.Fatalf("Sort: %v", sortErr)
		}
		for i := range first {
			if again[i].ID != first[i].ID {
				t.Fatalf("unstable order: %v vs %v", ids(first), ids(again))
			}
		}
	}
}

func TestSortDuplicateConnections(t *testing.T) {
	nodes := []graph.Node{node("a"), node("b")}
	connections := []graph.Connection{conn("a", "b"), conn("a", "b")}

	sorted, err := graph.Sort(nodes, connections)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if len(sorted) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(sorted), ids(sorted))
	}
	if sorted[0].ID != "a" || sorted[1].ID != "b" {
		t.Errorf("order = %v, want [a b]", ids(sorted))
	}
}
