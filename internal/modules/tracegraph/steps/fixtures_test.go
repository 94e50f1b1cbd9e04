package steps

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/yungbote/decisiontrace-backend/internal/data/graph"
	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

func decisionNode(id string, props map[string]any) tracegraph.Node {
	if props == nil {
		props = map[string]any{}
	}
	if _, ok := props["status"]; !ok {
		props["status"] = "approved"
	}
	return tracegraph.Node{ID: id, Labels: []string{tracegraph.LabelDecision}, Properties: props}
}

func labelledNode(id, label string) tracegraph.Node {
	return tracegraph.Node{ID: id, Labels: []string{label}, Properties: map[string]any{"name": id}}
}

func rel(id, relType, start, end string) tracegraph.Relationship {
	return tracegraph.Relationship{ID: id, Type: relType, StartNodeID: start, EndNodeID: end, Properties: map[string]any{}}
}

func newStore(nodes []tracegraph.Node, rels ...tracegraph.Relationship) *graph.MemoryStore {
	return graph.NewMemoryStore(tracegraph.GraphView{Nodes: nodes, Relationships: rels})
}

// plainStore hides optional capabilities so the generic GraphStore path is exercised.
type plainStore struct {
	inner GraphStore
}

func (p plainStore) GetNode(ctx context.Context, id string) (tracegraph.Node, error) {
	return p.inner.GetNode(ctx, id)
}
func (p plainStore) GetNeighbors(ctx context.Context, id string) (tracegraph.Neighborhood, error) {
	return p.inner.GetNeighbors(ctx, id)
}
func (p plainStore) GetRelationshipsAmong(ctx context.Context, ids []string, exclude map[string]bool) ([]tracegraph.Relationship, error) {
	return p.inner.GetRelationshipsAmong(ctx, ids, exclude)
}

// failingStore fails neighbor fetches for one id.
type failingStore struct {
	GraphStore
	failID string
	err    error
	calls  atomic.Int32
}

func (f *failingStore) GetNeighbors(ctx context.Context, id string) (tracegraph.Neighborhood, error) {
	f.calls.Add(1)
	if id == f.failID {
		return tracegraph.Neighborhood{}, f.err
	}
	return f.GraphStore.GetNeighbors(ctx, id)
}

type fakeSimilarity struct {
	results map[tracegraph.Space][]tracegraph.SimilarityResult
	errs    map[tracegraph.Space]error
	// block makes TopK wait until ctx is done for the listed spaces.
	block map[tracegraph.Space]bool
	calls atomic.Int32
	lastK atomic.Int32
}

func (f *fakeSimilarity) TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error) {
	f.calls.Add(1)
	f.lastK.Store(int32(k))
	if f.block[space] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.errs[space]; err != nil {
		return nil, err
	}
	out := append([]tracegraph.SimilarityResult(nil), f.results[space]...)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func scored(space tracegraph.Space, pairs ...any) []tracegraph.SimilarityResult {
	var out []tracegraph.SimilarityResult
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, tracegraph.SimilarityResult{ItemID: pairs[i].(string), Score: pairs[i+1].(float64), Space: space})
	}
	return out
}

type countingRecorder struct {
	degraded map[string]int
	dangling map[string]int
}

func newRecorder() *countingRecorder {
	return &countingRecorder{degraded: map[string]int{}, dangling: map[string]int{}}
}

func (r *countingRecorder) IncPrecedentDegraded(space string) { r.degraded[space]++ }
func (r *countingRecorder) IncDanglingExcluded(component string, n int) {
	r.dangling[component] += n
}

var errIndexOffline = errors.New("index offline")
