package graph

import (
	"context"
	"math"
	"sort"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

// MemorySimilarity ranks decisions by cosine similarity of their stored embeddings.
// Scores use the (1+cos)/2 mapping of Neo4j cosine vector indexes so they stay in [0,1].
type MemorySimilarity struct {
	store *MemoryStore
}

func NewMemorySimilarity(store *MemoryStore) *MemorySimilarity {
	return &MemorySimilarity{store: store}
}

func (m *MemorySimilarity) TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error) {
	const op = "graph.MemorySimilarity.TopK"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !space.Valid() {
		return nil, tracegraph.Validation(op, "unknown similarity space %q", space)
	}
	if k <= 0 {
		return []tracegraph.SimilarityResult{}, nil
	}
	seed, ok := m.store.rawNode(seedID)
	if !ok {
		return nil, tracegraph.NotFound(op, "node", seedID)
	}
	prop := space.EmbeddingProperty()
	seedVec, ok := tracegraph.FloatSlice(seed.Properties[prop])
	if !ok {
		return nil, tracegraph.NewError(tracegraph.CodeInconsistentData, op, "seed "+seedID+" has no "+prop, nil)
	}

	out := make([]tracegraph.SimilarityResult, 0, k)
	for id, vec := range m.store.decisionsWithEmbedding(prop) {
		if id == seedID || len(vec) != len(seedVec) {
			continue
		}
		out = append(out, tracegraph.SimilarityResult{
			ItemID: id,
			Score:  (1 + CosineSimilarity(seedVec, vec)) / 2,
			Space:  space,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ItemID < out[j].ItemID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// CosineSimilarity returns 0 when either vector has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
