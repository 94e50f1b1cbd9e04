package steps

import (
	"context"
	"time"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

// GraphStore is the read contract every core operation depends on. Implementations
// must be safe for concurrent use and return tracegraph.CodeNotFound for unknown ids.
type GraphStore interface {
	GetNode(ctx context.Context, id string) (tracegraph.Node, error)
	// GetNeighbors returns the one-hop neighborhood of id in either direction, without id itself.
	GetNeighbors(ctx context.Context, id string) (tracegraph.Neighborhood, error)
	// GetRelationshipsAmong returns relationships whose endpoints are both in ids,
	// skipping any relationship id present in exclude.
	GetRelationshipsAmong(ctx context.Context, ids []string, exclude map[string]bool) ([]tracegraph.Relationship, error)
}

// CausalNeighborSource is an optional GraphStore capability that fetches only the
// causal edges on one side of a node. Traversal falls back to GetNeighbors without it.
type CausalNeighborSource interface {
	GetCausalNeighbors(ctx context.Context, id string, incoming bool, relTypes []string) (tracegraph.Neighborhood, error)
}

// NodeFinder is an optional GraphStore capability for label-scoped lookups. Customer
// search and policy listing report dependency_unavailable without it.
type NodeFinder interface {
	FindNodes(ctx context.Context, q tracegraph.NodeQuery) ([]tracegraph.Node, error)
}

// SchemaSource aggregates label and relationship-type populations.
type SchemaSource interface {
	LabelCounts(ctx context.Context) ([]tracegraph.LabelCount, error)
	RelationshipPatterns(ctx context.Context) ([]tracegraph.RelationshipPattern, error)
}

// SimilarityProvider returns the top-k nearest decisions to seedID in one space,
// highest score first, excluding the seed itself.
type SimilarityProvider interface {
	TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error)
}

// Recorder receives core-level counters. A nil Recorder is valid.
type Recorder interface {
	IncPrecedentDegraded(space string)
	IncDanglingExcluded(component string, n int)
}

type Limits struct {
	DependencyTimeout    time.Duration
	MaxDepth             int
	MaxK                 int
	HybridOverfetch      int
	ExpansionConcurrency int
	MaxExploreNodes      int
}

func DefaultLimits() Limits {
	return Limits{
		DependencyTimeout:    5 * time.Second,
		MaxDepth:             10,
		MaxK:                 100,
		HybridOverfetch:      2,
		ExpansionConcurrency: 8,
		MaxExploreNodes:      500,
	}
}

func (l Limits) normalized() Limits {
	def := DefaultLimits()
	if l.DependencyTimeout <= 0 {
		l.DependencyTimeout = def.DependencyTimeout
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = def.MaxDepth
	}
	if l.MaxK <= 0 {
		l.MaxK = def.MaxK
	}
	if l.HybridOverfetch <= 0 {
		l.HybridOverfetch = 1
	}
	if l.ExpansionConcurrency <= 0 {
		l.ExpansionConcurrency = def.ExpansionConcurrency
	}
	if l.MaxExploreNodes <= 0 {
		l.MaxExploreNodes = def.MaxExploreNodes
	}
	return l
}

// withDependency bounds one external call by the dependency timeout and classifies its failure.
func withDependency[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := fn(callCtx)
	if err != nil {
		var zero T
		return zero, tracegraph.ClassifyDependency(op, err)
	}
	return out, nil
}

func fetchNode(ctx context.Context, store GraphStore, timeout time.Duration, op, id string) (tracegraph.Node, error) {
	return withDependency(ctx, timeout, op, func(c context.Context) (tracegraph.Node, error) {
		return store.GetNode(c, id)
	})
}

func incDegraded(r Recorder, space tracegraph.Space) {
	if r != nil {
		r.IncPrecedentDegraded(string(space))
	}
}

func incDangling(r Recorder, component string, n int) {
	if r != nil && n > 0 {
		r.IncDanglingExcluded(component, n)
	}
}
