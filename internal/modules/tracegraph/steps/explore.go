package steps

import (
	"context"
	"sort"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

type ExploreFromInput struct {
	NodeID string `json:"node_id"`
	Depth  int    `json:"depth"`
	Limit  int    `json:"limit"`
}

// ExploreFrom builds an initial view around a node by expanding ring by ring up to
// Depth. Expansion stops after the ring that reaches Limit visible nodes; the result is
// then cut to the center plus the nearest nodes by (ring, id).
func ExploreFrom(ctx context.Context, deps ExpandNodeDeps, in ExploreFromInput) (tracegraph.GraphView, error) {
	const op = "tracegraph.ExploreFrom"
	limits := deps.Limits.normalized()
	centerID := strings.TrimSpace(in.NodeID)
	if centerID == "" {
		return tracegraph.GraphView{}, tracegraph.Validation(op, "node id is required")
	}
	if in.Depth < 0 || in.Depth > limits.MaxDepth {
		return tracegraph.GraphView{}, tracegraph.Validation(op, "depth must be in [0,%d] (got %d)", limits.MaxDepth, in.Depth)
	}
	if in.Limit < 1 || in.Limit > limits.MaxExploreNodes {
		return tracegraph.GraphView{}, tracegraph.Validation(op, "limit must be in [1,%d] (got %d)", limits.MaxExploreNodes, in.Limit)
	}

	center, err := fetchNode(ctx, deps.Graph, limits.DependencyTimeout, op, centerID)
	if err != nil {
		return tracegraph.GraphView{}, err
	}
	view := tracegraph.GraphView{
		Nodes:         []tracegraph.Node{center},
		Relationships: []tracegraph.Relationship{},
	}
	ring := map[string]int{centerID: 0}
	frontier := []string{centerID}

	for depth := 1; depth <= in.Depth && len(frontier) > 0 && len(view.Nodes) < in.Limit; depth++ {
		var next []string
		for _, id := range frontier {
			view, err = ExpandNode(ctx, deps, ExpandNodeInput{View: view, NodeID: id})
			if err != nil {
				return tracegraph.GraphView{}, err
			}
			for _, n := range view.Nodes {
				if _, ok := ring[n.ID]; ok {
					continue
				}
				ring[n.ID] = depth
				next = append(next, n.ID)
			}
		}
		sort.Strings(next)
		frontier = next
	}

	if len(view.Nodes) > in.Limit {
		view = truncateView(view, ring, centerID, in.Limit)
	}
	return view, nil
}

// truncateView keeps the limit nearest nodes and drops relationships that would lose an endpoint.
func truncateView(view tracegraph.GraphView, ring map[string]int, centerID string, limit int) tracegraph.GraphView {
	nodes := append([]tracegraph.Node(nil), view.Nodes...)
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if (a.ID == centerID) != (b.ID == centerID) {
			return a.ID == centerID
		}
		if ring[a.ID] != ring[b.ID] {
			return ring[a.ID] < ring[b.ID]
		}
		return a.ID < b.ID
	})
	nodes = nodes[:limit]
	keep := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		keep[n.ID] = true
	}

	out := tracegraph.GraphView{
		Nodes:            nodes,
		Relationships:    []tracegraph.Relationship{},
		DanglingExcluded: view.DanglingExcluded,
	}
	// A node that lost a neighbor must stay expandable.
	lostNeighbor := map[string]bool{}
	for _, r := range view.Relationships {
		if keep[r.StartNodeID] && keep[r.EndNodeID] {
			out.Relationships = append(out.Relationships, r)
			continue
		}
		lostNeighbor[r.StartNodeID] = true
		lostNeighbor[r.EndNodeID] = true
	}
	for _, id := range view.Expanded {
		if keep[id] && !lostNeighbor[id] {
			out.Expanded = append(out.Expanded, id)
		}
	}
	return out
}
