package steps

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

type FindPrecedentsDeps struct {
	Log        *logger.Logger
	Graph      GraphStore
	Similarity SimilarityProvider
	Metrics    Recorder
	Limits     Limits
}

type FindPrecedentsInput struct {
	DecisionID string          `json:"decision_id"`
	K          int             `json:"k"`
	Mode       tracegraph.Mode `json:"mode"`
	// Category keeps only precedents whose category matches, ignoring case.
	Category string `json:"category,omitempty"`
}

func FindPrecedents(ctx context.Context, deps FindPrecedentsDeps, in FindPrecedentsInput) (tracegraph.PrecedentSet, error) {
	const op = "tracegraph.FindPrecedents"
	limits := deps.Limits.normalized()
	seedID := strings.TrimSpace(in.DecisionID)
	mode := in.Mode
	if mode == "" {
		mode = tracegraph.ModeHybrid
	}
	out := tracegraph.PrecedentSet{SeedID: seedID, Mode: mode, Results: []tracegraph.PrecedentResult{}}

	if seedID == "" {
		return out, tracegraph.Validation(op, "decision id is required")
	}
	spaces := mode.Spaces()
	if len(spaces) == 0 {
		return out, tracegraph.Validation(op, "unknown mode %q", mode)
	}
	if in.K < 0 {
		return out, tracegraph.Validation(op, "k must be >= 0 (got %d)", in.K)
	}
	if in.K > limits.MaxK {
		return out, tracegraph.Validation(op, "k must be <= %d (got %d)", limits.MaxK, in.K)
	}
	if in.K == 0 {
		return out, nil
	}

	seed, err := fetchNode(ctx, deps.Graph, limits.DependencyTimeout, op, seedID)
	if err != nil {
		return out, err
	}
	if !seed.IsDecision() {
		return out, tracegraph.NotFound(op, "decision", seedID)
	}

	category := strings.TrimSpace(in.Category)
	fetchK := in.K
	if mode == tracegraph.ModeHybrid {
		fetchK = in.K * limits.HybridOverfetch
	}
	if category != "" {
		// The filter runs after ranking, so pull a wider candidate set.
		fetchK *= limits.HybridOverfetch
	}

	results := make([][]tracegraph.SimilarityResult, len(spaces))
	errs := make([]error, len(spaces))
	// Each space gets its own deadline and a failure in one never cancels the other.
	var g errgroup.Group
	for i, space := range spaces {
		i, space := i, space
		g.Go(func() error {
			res, err := withDependency(ctx, limits.DependencyTimeout, op+"."+string(space), func(c context.Context) ([]tracegraph.SimilarityResult, error) {
				return deps.Similarity.TopK(c, space, seedID, fetchK)
			})
			results[i] = res
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, tracegraph.FromContext(op, ctxErr)
	}

	bySpace := map[tracegraph.Space][]tracegraph.SimilarityResult{}
	var failed []tracegraph.Space
	var firstErr error
	for i, space := range spaces {
		if errs[i] != nil {
			failed = append(failed, space)
			if firstErr == nil {
				firstErr = errs[i]
			}
			if deps.Log != nil {
				deps.Log.Warn("similarity space failed", "op", op, "decision_id", seedID, "space", space, "error", errs[i])
			}
			continue
		}
		bySpace[space] = results[i]
	}
	if len(failed) == len(spaces) {
		return out, allSpacesFailed(op, errs, firstErr)
	}
	if len(failed) > 0 {
		out.Degraded = true
		out.FailedSpaces = failed
		for _, space := range failed {
			incDegraded(deps.Metrics, space)
		}
		if deps.Log != nil {
			deps.Log.Warn("precedent search degraded to single space", "decision_id", seedID, "failed_spaces", failed)
		}
	}

	keep := in.K
	if category != "" {
		keep = fetchK * len(spaces)
	}
	merged, dropped := MergePrecedents(seedID, spaces, bySpace, keep)
	if dropped > 0 && deps.Log != nil {
		deps.Log.Warn("non-finite similarity scores dropped", "decision_id", seedID, "dropped", dropped)
	}
	if category != "" {
		merged, err = filterByCategory(ctx, deps, limits, op, merged, category, in.K)
		if err != nil {
			return out, err
		}
	}
	out.Results = merged
	return out, nil
}

// filterByCategory keeps ranked candidates whose Decision category matches, preserving
// order and stopping at k. Candidates missing from the graph are skipped.
func filterByCategory(ctx context.Context, deps FindPrecedentsDeps, limits Limits, op string, ranked []tracegraph.PrecedentResult, category string, k int) ([]tracegraph.PrecedentResult, error) {
	matched := make([]bool, len(ranked))
	missing := make([]bool, len(ranked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limits.ExpansionConcurrency)
	for i := range ranked {
		i := i
		g.Go(func() error {
			n, err := fetchNode(gctx, deps.Graph, limits.DependencyTimeout, op, ranked[i].DecisionID)
			if tracegraph.IsCode(err, tracegraph.CodeNotFound) {
				missing[i] = true
				return nil
			}
			if err != nil {
				return err
			}
			matched[i] = n.IsDecision() && strings.EqualFold(tracegraph.StringProp(n.Properties, "category"), category)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]tracegraph.PrecedentResult, 0, k)
	dangling := 0
	for i, r := range ranked {
		if missing[i] {
			dangling++
			continue
		}
		if matched[i] && len(out) < k {
			out = append(out, r)
		}
	}
	incDangling(deps.Metrics, "precedents", dangling)
	return out, nil
}

// allSpacesFailed reports a timeout only when every space timed out.
func allSpacesFailed(op string, errs []error, firstErr error) error {
	code := tracegraph.CodeDependencyTimeout
	for _, err := range errs {
		if !tracegraph.IsCode(err, tracegraph.CodeDependencyTimeout) {
			code = tracegraph.CodeDependencyUnavailable
			break
		}
	}
	return tracegraph.NewError(code, op, "all similarity spaces failed", errors.Join(errs...))
}

type mergedPrecedent struct {
	scores map[tracegraph.Space]float64
}

// MergePrecedents combines per-space results by decision id. Items found in several
// spaces score the unweighted mean of their space scores. Ordering is combined score
// descending, then entries backed by more spaces first, then ascending id. Results with
// a NaN or infinite score are dropped and counted in the second return value.
func MergePrecedents(seedID string, spaces []tracegraph.Space, bySpace map[tracegraph.Space][]tracegraph.SimilarityResult, k int) ([]tracegraph.PrecedentResult, int) {
	if k <= 0 {
		return []tracegraph.PrecedentResult{}, 0
	}
	dropped := 0
	merged := map[string]*mergedPrecedent{}
	for _, space := range spaces {
		for _, r := range bySpace[space] {
			id := strings.TrimSpace(r.ItemID)
			if id == "" || id == seedID {
				continue
			}
			if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
				dropped++
				continue
			}
			m := merged[id]
			if m == nil {
				m = &mergedPrecedent{scores: map[tracegraph.Space]float64{}}
				merged[id] = m
			}
			// A provider repeating an id keeps its best score for that space.
			if prev, ok := m.scores[space]; !ok || r.Score > prev {
				m.scores[space] = r.Score
			}
		}
	}

	out := make([]tracegraph.PrecedentResult, 0, len(merged))
	for id, m := range merged {
		res := tracegraph.PrecedentResult{DecisionID: id}
		sum := 0.0
		for _, space := range spaces {
			score, ok := m.scores[space]
			if !ok {
				continue
			}
			s := score
			switch space {
			case tracegraph.SpaceSemantic:
				res.SemanticScore = &s
			case tracegraph.SpaceStructural:
				res.StructuralScore = &s
			}
			res.ContributingSpaces = append(res.ContributingSpaces, space)
			sum += score
		}
		res.CombinedScore = sum / float64(len(res.ContributingSpaces))
		out = append(out, res)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if len(a.ContributingSpaces) != len(b.ContributingSpaces) {
			return len(a.ContributingSpaces) > len(b.ContributingSpaces)
		}
		return a.DecisionID < b.DecisionID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, dropped
}
