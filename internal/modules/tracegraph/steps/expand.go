package steps

import (
	"context"
	"sort"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

type ExpandNodeDeps struct {
	Log     *logger.Logger
	Graph   GraphStore
	Metrics Recorder
	Limits  Limits
}

type ExpandNodeInput struct {
	View   tracegraph.GraphView `json:"view"`
	NodeID string               `json:"nodeId"`
}

// ExpandNode grows a caller-held view by the one-hop neighborhood of NodeID and then
// backfills edges among all visible nodes that no earlier expansion surfaced. The input
// view is never mutated.
func ExpandNode(ctx context.Context, deps ExpandNodeDeps, in ExpandNodeInput) (tracegraph.GraphView, error) {
	const op = "tracegraph.ExpandNode"
	limits := deps.Limits.normalized()
	nodeID := strings.TrimSpace(in.NodeID)
	if nodeID == "" {
		return in.View, tracegraph.Validation(op, "node id is required")
	}

	view, dropped := in.View.Normalize()
	incDangling(deps.Metrics, "expand_input", dropped)
	if view.IsExpanded(nodeID) {
		return view, nil
	}

	known := view.NodeIDs()
	var newNodes []tracegraph.Node
	if !known[nodeID] {
		seed, err := fetchNode(ctx, deps.Graph, limits.DependencyTimeout, op, nodeID)
		if err != nil {
			return in.View, err
		}
		newNodes = append(newNodes, seed)
	}

	hood, err := withDependency(ctx, limits.DependencyTimeout, op, func(c context.Context) (tracegraph.Neighborhood, error) {
		return deps.Graph.GetNeighbors(c, nodeID)
	})
	if err != nil {
		return in.View, err
	}

	pending := map[string]bool{nodeID: true}
	neighborsAdded := 0
	for _, n := range sortedNodes(hood.Nodes) {
		if n.ID == "" || known[n.ID] || pending[n.ID] {
			continue
		}
		pending[n.ID] = true
		newNodes = append(newNodes, n)
		neighborsAdded++
	}

	if neighborsAdded == 0 && known[nodeID] {
		view.Expanded = append(view.Expanded, nodeID)
		return view, nil
	}

	allIDs := make(map[string]bool, len(known)+len(newNodes))
	for id := range known {
		allIDs[id] = true
	}
	for _, n := range newNodes {
		allIDs[n.ID] = true
	}

	exclude := view.RelationshipIDs()
	dangling := 0
	var direct []tracegraph.Relationship
	for _, r := range sortedRelationships(hood.Relationships) {
		if r.ID == "" || exclude[r.ID] {
			continue
		}
		exclude[r.ID] = true
		if !allIDs[r.StartNodeID] || !allIDs[r.EndNodeID] {
			dangling++
			continue
		}
		direct = append(direct, r)
	}

	ids := make([]string, 0, len(allIDs))
	for id := range allIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	backfillRaw, err := withDependency(ctx, limits.DependencyTimeout, op, func(c context.Context) ([]tracegraph.Relationship, error) {
		return deps.Graph.GetRelationshipsAmong(c, ids, copySet(exclude))
	})
	if err != nil {
		return in.View, err
	}
	var backfill []tracegraph.Relationship
	for _, r := range sortedRelationships(backfillRaw) {
		if r.ID == "" || exclude[r.ID] {
			continue
		}
		exclude[r.ID] = true
		if !allIDs[r.StartNodeID] || !allIDs[r.EndNodeID] {
			dangling++
			continue
		}
		backfill = append(backfill, r)
	}

	if dangling > 0 {
		incDangling(deps.Metrics, "expand", dangling)
		if deps.Log != nil {
			deps.Log.Warn("excluded dangling relationships during expansion", "node_id", nodeID, "count", dangling)
		}
	}

	view.Nodes = append(view.Nodes, newNodes...)
	view.Relationships = append(view.Relationships, direct...)
	view.Relationships = append(view.Relationships, backfill...)
	view.Expanded = append(view.Expanded, nodeID)
	view.DanglingExcluded += dangling
	return view, nil
}

func sortedNodes(in []tracegraph.Node) []tracegraph.Node {
	out := append([]tracegraph.Node(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedRelationships(in []tracegraph.Relationship) []tracegraph.Relationship {
	out := append([]tracegraph.Relationship(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
