package steps

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

type TraceCausalChainDeps struct {
	Log    *logger.Logger
	Graph  GraphStore
	Limits Limits
}

type TraceCausalChainInput struct {
	DecisionID string               `json:"decision_id"`
	MaxDepth   int                  `json:"max_depth"`
	Direction  tracegraph.Direction `json:"direction,omitempty"`
}

// TraceCausalChain walks CAUSED/INFLUENCED edges backward (causes) and forward (effects)
// from the seed using bounded breadth-first search. Any failure discards the whole result.
func TraceCausalChain(ctx context.Context, deps TraceCausalChainDeps, in TraceCausalChainInput) (tracegraph.CausalChain, error) {
	const op = "tracegraph.TraceCausalChain"
	limits := deps.Limits.normalized()
	seedID := strings.TrimSpace(in.DecisionID)
	dir := in.Direction
	if dir == "" {
		dir = tracegraph.DirectionBoth
	}
	out := tracegraph.CausalChain{
		DecisionID: seedID,
		MaxDepth:   in.MaxDepth,
		Direction:  dir,
		Causes:     []tracegraph.ChainEntry{},
		Effects:    []tracegraph.ChainEntry{},
	}

	if seedID == "" {
		return out, tracegraph.Validation(op, "decision id is required")
	}
	if in.MaxDepth < 0 {
		return out, tracegraph.Validation(op, "max depth must be >= 0 (got %d)", in.MaxDepth)
	}
	if in.MaxDepth > limits.MaxDepth {
		return out, tracegraph.Validation(op, "max depth must be <= %d (got %d)", limits.MaxDepth, in.MaxDepth)
	}
	if !dir.IncludesCauses() && !dir.IncludesEffects() {
		return out, tracegraph.Validation(op, "unknown direction %q", dir)
	}
	if in.MaxDepth == 0 {
		return out, nil
	}

	seed, err := fetchNode(ctx, deps.Graph, limits.DependencyTimeout, op, seedID)
	if err != nil {
		return out, err
	}
	if !seed.IsDecision() {
		return out, tracegraph.Validation(op, "node %q is not a Decision", seedID)
	}

	t := &causalTraversal{deps: deps, limits: limits, op: op}
	var causes, effects []tracegraph.ChainEntry
	g, gctx := errgroup.WithContext(ctx)
	if dir.IncludesCauses() {
		g.Go(func() error {
			var err error
			causes, err = t.walk(gctx, seedID, in.MaxDepth, true)
			return err
		})
	}
	if dir.IncludesEffects() {
		g.Go(func() error {
			var err error
			effects, err = t.walk(gctx, seedID, in.MaxDepth, false)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if causes != nil {
		out.Causes = causes
	}
	if effects != nil {
		out.Effects = effects
	}
	return out, nil
}

type causalTraversal struct {
	deps   TraceCausalChainDeps
	limits Limits
	op     string
}

// walk runs one direction. incoming=true follows edges into the current node (causes).
func (t *causalTraversal) walk(ctx context.Context, seedID string, maxDepth int, incoming bool) ([]tracegraph.ChainEntry, error) {
	visited := map[string]bool{seedID: true}
	frontier := []string{seedID}
	entries := []tracegraph.ChainEntry{}
	skipped := 0

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		hoods, err := t.fetchLevel(ctx, frontier, incoming)
		if err != nil {
			return nil, err
		}
		var next []string
		for i, current := range frontier {
			hood := hoods[i]
			nodesByID := make(map[string]tracegraph.Node, len(hood.Nodes))
			for _, n := range hood.Nodes {
				nodesByID[n.ID] = n
			}
			for _, nextID := range causalSteps(current, hood.Relationships, incoming) {
				if visited[nextID] {
					continue
				}
				node, ok := nodesByID[nextID]
				if !ok {
					// Edge endpoint missing from the store response.
					skipped++
					continue
				}
				visited[nextID] = true
				next = append(next, nextID)
				if !node.IsDecision() {
					continue
				}
				d, err := tracegraph.DecisionFromNode(node)
				if err != nil {
					skipped++
					if t.deps.Log != nil {
						t.deps.Log.Warn("skipping malformed decision in causal chain", "decision_id", nextID, "error", err)
					}
					continue
				}
				entries = append(entries, tracegraph.ChainEntry{Decision: d, Depth: depth})
			}
		}
		sort.Strings(next)
		frontier = next
	}

	if skipped > 0 && t.deps.Log != nil {
		t.deps.Log.Debug("causal traversal skipped nodes", "seed_id", seedID, "incoming", incoming, "skipped", skipped)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Depth != entries[j].Depth {
			return entries[i].Depth < entries[j].Depth
		}
		return entries[i].Decision.ID < entries[j].Decision.ID
	})
	return entries, nil
}

// fetchLevel loads the causal neighborhood of every frontier node concurrently.
func (t *causalTraversal) fetchLevel(ctx context.Context, frontier []string, incoming bool) ([]tracegraph.Neighborhood, error) {
	out := make([]tracegraph.Neighborhood, len(frontier))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.limits.ExpansionConcurrency)
	causal, hasCausal := t.deps.Graph.(CausalNeighborSource)
	for i, id := range frontier {
		i, id := i, id
		g.Go(func() error {
			hood, err := withDependency(gctx, t.limits.DependencyTimeout, t.op, func(c context.Context) (tracegraph.Neighborhood, error) {
				if hasCausal {
					return causal.GetCausalNeighbors(c, id, incoming, tracegraph.CausalRelationshipTypes)
				}
				return t.deps.Graph.GetNeighbors(c, id)
			})
			if err != nil {
				return err
			}
			out[i] = hood
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// causalSteps returns the ids one causal hop from current in the requested direction,
// in ascending order. Self-loops yield current, which the caller has already visited.
func causalSteps(current string, rels []tracegraph.Relationship, incoming bool) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rels {
		if !r.IsCausal() {
			continue
		}
		var nextID string
		switch {
		case incoming && r.EndNodeID == current:
			nextID = r.StartNodeID
		case !incoming && r.StartNodeID == current:
			nextID = r.EndNodeID
		default:
			continue
		}
		if nextID == "" || seen[nextID] {
			continue
		}
		seen[nextID] = true
		out = append(out, nextID)
	}
	sort.Strings(out)
	return out
}
