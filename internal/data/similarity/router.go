package similarity

import (
	"context"
	"sort"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

// Router sends each space to its own provider, so semantic and structural indexes can
// live in different backends.
type Router struct {
	bySpace map[tracegraph.Space]Provider
}

func NewRouter(bySpace map[tracegraph.Space]Provider) *Router {
	r := &Router{bySpace: map[tracegraph.Space]Provider{}}
	for space, p := range bySpace {
		if p != nil {
			r.bySpace[space] = p
		}
	}
	return r
}

func (r *Router) TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error) {
	p, ok := r.bySpace[space]
	if !ok {
		if !space.Valid() {
			return nil, tracegraph.Validation("similarity.Router.TopK", "unknown similarity space %q", space)
		}
		return nil, tracegraph.NewError(tracegraph.CodeDependencyUnavailable, "similarity.Router.TopK", "no provider configured for "+string(space)+" space", nil)
	}
	return p.TopK(ctx, space, seedID, k)
}

func (r *Router) Spaces() []tracegraph.Space {
	out := make([]tracegraph.Space, 0, len(r.bySpace))
	for s := range r.bySpace {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
