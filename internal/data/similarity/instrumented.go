package similarity

import (
	"context"
	"time"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

type DependencyObserver interface {
	ObserveDependency(dependency, operation, status string, dur time.Duration)
}

type instrumented struct {
	provider string
	inner    Provider
	metrics  DependencyObserver
}

func Instrument(provider string, inner Provider, metrics DependencyObserver) Provider {
	if inner == nil || metrics == nil {
		return inner
	}
	return &instrumented{
		provider: provider,
		inner:    inner,
		metrics:  metrics,
	}
}

func (s *instrumented) TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error) {
	start := time.Now()
	out, err := s.inner.TopK(ctx, space, seedID, k)
	s.metrics.ObserveDependency(s.provider, "top_k_"+string(space), callStatus(ctx, err), time.Since(start))
	return out, err
}

func callStatus(ctx context.Context, err error) string {
	if err == nil {
		return "success"
	}
	classified := tracegraph.ClassifyDependency("", err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		classified = tracegraph.FromContext("", ctxErr)
	}
	switch tracegraph.CodeOf(classified) {
	case tracegraph.CodeDependencyTimeout:
		return "timeout"
	case tracegraph.CodeCanceled:
		return "canceled"
	case tracegraph.CodeValidation, tracegraph.CodeNotFound, tracegraph.CodeInconsistentData:
		return "rejected"
	default:
		return "error"
	}
}
