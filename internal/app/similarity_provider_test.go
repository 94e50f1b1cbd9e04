package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/yungbote/decisiontrace-backend/internal/data/graph"
	"github.com/yungbote/decisiontrace-backend/internal/data/similarity"
	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
	"github.com/yungbote/decisiontrace-backend/internal/platform/qdrant"
)

type fixedProvider struct{ results []domain.SimilarityResult }

func (f fixedProvider) TopK(ctx context.Context, space domain.Space, seedID string, k int) ([]domain.SimilarityResult, error) {
	return f.results, nil
}

func memoryFixture() *graph.MemoryStore {
	return graph.NewMemoryStore(domain.GraphView{
		Nodes: []domain.Node{
			{ID: "d1", Labels: []string{domain.LabelDecision}, Properties: map[string]any{domain.PropSemanticEmbedding: []any{1.0, 0.0}}},
			{ID: "d2", Labels: []string{domain.LabelDecision}, Properties: map[string]any{domain.PropSemanticEmbedding: []any{1.0, 0.0}}},
		},
	})
}

func TestResolveSimilarityRoutesPerSpace(t *testing.T) {
	calls := 0
	prev := newQdrantSimilarity
	newQdrantSimilarity = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (similarity.Provider, error) {
		calls++
		return fixedProvider{results: []domain.SimilarityResult{{ItemID: "q1", Score: 0.7, Space: domain.SpaceStructural}}}, nil
	}
	t.Cleanup(func() { newQdrantSimilarity = prev })

	cfg := DefaultConfig()
	cfg.Graph.Backend = GraphBackendMemory
	cfg.Similarity.Structural.Provider = SimilarityProviderQdrant

	router, err := resolveSimilarity(context.Background(), similarityDeps{Log: logger.Nop(), Cfg: cfg, Memory: memoryFixture()})
	if err != nil {
		t.Fatalf("resolveSimilarity: %v", err)
	}
	if calls != 1 {
		t.Fatalf("qdrant constructor calls: want=1 got=%d", calls)
	}

	sem, err := router.TopK(context.Background(), domain.SpaceSemantic, "d1", 5)
	if err != nil || len(sem) != 1 || sem[0].ItemID != "d2" {
		t.Fatalf("semantic via memory: got=%v err=%v", sem, err)
	}
	st, err := router.TopK(context.Background(), domain.SpaceStructural, "d1", 5)
	if err != nil || len(st) != 1 || st[0].ItemID != "q1" {
		t.Fatalf("structural via qdrant: got=%v err=%v", st, err)
	}
}

func TestResolveSimilarityClassifiesBootstrapFailure(t *testing.T) {
	prev := newQdrantSimilarity
	newQdrantSimilarity = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (similarity.Provider, error) {
		return nil, qdrant.ValidateConfig(cfg)
	}
	t.Cleanup(func() { newQdrantSimilarity = prev })

	cfg := DefaultConfig()
	cfg.Graph.Backend = GraphBackendMemory
	cfg.Similarity.Semantic.Provider = SimilarityProviderQdrant

	_, err := resolveSimilarity(context.Background(), similarityDeps{Log: logger.Nop(), Cfg: cfg, Memory: memoryFixture()})
	if got := similarityBootstrapErrorCode(err); got != SimilarityBootstrapErrorMissingQdrantURL {
		t.Fatalf("code: want=%s got=%s (%v)", SimilarityBootstrapErrorMissingQdrantURL, got, err)
	}
}

func TestResolveSimilarityPgvectorNeedsPostgres(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.Backend = GraphBackendMemory
	cfg.Similarity.Semantic.Provider = SimilarityProviderPgvector

	_, err := resolveSimilarity(context.Background(), similarityDeps{Log: logger.Nop(), Cfg: cfg, Memory: memoryFixture()})
	var bootstrapErr *SimilarityBootstrapError
	if !errors.As(err, &bootstrapErr) || bootstrapErr.Provider != SimilarityProviderPgvector || bootstrapErr.Space != domain.SpaceSemantic {
		t.Fatalf("want pgvector bootstrap error, got=%v", err)
	}
}

func TestClassifySimilarityBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want SimilarityBootstrapErrorCode
	}{
		{"invalid url", &qdrant.ConfigError{Code: qdrant.ConfigErrorInvalidURL}, SimilarityBootstrapErrorInvalidQdrantURL},
		{"missing collection", &qdrant.ConfigError{Code: qdrant.ConfigErrorMissingCollection}, SimilarityBootstrapErrorMissingQdrantColl},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, SimilarityBootstrapErrorConnectFailed},
		{"unavailable", domain.NewError(domain.CodeDependencyUnavailable, "qdrant.ready", "down", nil), SimilarityBootstrapErrorConnectFailed},
		{"connection refused text", fmt.Errorf("dial tcp: connection refused"), SimilarityBootstrapErrorConnectFailed},
		{"other", fmt.Errorf("bad index name"), SimilarityBootstrapErrorInitFailed},
	}
	for _, tc := range cases {
		got := similarityBootstrapErrorCode(classifySimilarityBootstrapError(SimilarityProviderQdrant, domain.SpaceSemantic, tc.err))
		if got != tc.want {
			t.Fatalf("%s: want=%s got=%s", tc.name, tc.want, got)
		}
	}
}
