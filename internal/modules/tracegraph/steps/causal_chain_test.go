package steps

import (
	"context"
	"testing"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

func chainIDs(entries []tracegraph.ChainEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.String())
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// root -> a -> b -> c, root <- p1 <- p2, plus an ABOUT edge that must be ignored.
func linearChainStore() GraphStore {
	return newStore(
		[]tracegraph.Node{
			decisionNode("root", nil), decisionNode("a", nil), decisionNode("b", nil), decisionNode("c", nil),
			decisionNode("p1", nil), decisionNode("p2", nil), labelledNode("cust", tracegraph.LabelPerson),
		},
		rel("r1", tracegraph.RelCaused, "root", "a"),
		rel("r2", tracegraph.RelInfluenced, "a", "b"),
		rel("r3", tracegraph.RelCaused, "b", "c"),
		rel("r4", tracegraph.RelCaused, "p1", "root"),
		rel("r5", tracegraph.RelInfluenced, "p2", "p1"),
		rel("r6", tracegraph.RelAbout, "root", "cust"),
	)
}

func TestTraceCausalChainDepthBound(t *testing.T) {
	deps := TraceCausalChainDeps{Graph: linearChainStore(), Limits: DefaultLimits()}
	got, err := TraceCausalChain(context.Background(), deps, TraceCausalChainInput{DecisionID: "root", MaxDepth: 2})
	if err != nil {
		t.Fatalf("TraceCausalChain: %v", err)
	}
	if want := []string{"a@1", "b@2"}; !sameStrings(chainIDs(got.Effects), want) {
		t.Fatalf("effects: want=%v got=%v", want, chainIDs(got.Effects))
	}
	if want := []string{"p1@1", "p2@2"}; !sameStrings(chainIDs(got.Causes), want) {
		t.Fatalf("causes: want=%v got=%v", want, chainIDs(got.Causes))
	}
}

func TestTraceCausalChainCycleSafe(t *testing.T) {
	store := newStore(
		[]tracegraph.Node{decisionNode("A", nil), decisionNode("B", nil), decisionNode("C", nil)},
		rel("ab", tracegraph.RelCaused, "A", "B"),
		rel("bc", tracegraph.RelCaused, "B", "C"),
		rel("ca", tracegraph.RelCaused, "C", "A"),
		rel("aa", tracegraph.RelInfluenced, "A", "A"),
	)
	for _, s := range []GraphStore{store, plainStore{inner: store}} {
		got, err := TraceCausalChain(context.Background(), TraceCausalChainDeps{Graph: s}, TraceCausalChainInput{DecisionID: "A", MaxDepth: 5})
		if err != nil {
			t.Fatalf("TraceCausalChain: %v", err)
		}
		if want := []string{"B@1", "C@2"}; !sameStrings(chainIDs(got.Effects), want) {
			t.Fatalf("effects: want=%v got=%v", want, chainIDs(got.Effects))
		}
		if want := []string{"C@1", "B@2"}; !sameStrings(chainIDs(got.Causes), want) {
			t.Fatalf("causes: want=%v got=%v", want, chainIDs(got.Causes))
		}
	}
}

func TestTraceCausalChainTraversesThroughNonDecisions(t *testing.T) {
	store := newStore(
		[]tracegraph.Node{decisionNode("d1", nil), labelledNode("x", tracegraph.LabelPolicy), decisionNode("d2", nil), decisionNode("d3", nil)},
		rel("r1", tracegraph.RelCaused, "d1", "x"),
		rel("r2", tracegraph.RelCaused, "x", "d2"),
		rel("r3", tracegraph.RelCaused, "d1", "d3"),
	)
	got, err := TraceCausalChain(context.Background(), TraceCausalChainDeps{Graph: store}, TraceCausalChainInput{DecisionID: "d1", MaxDepth: 3})
	if err != nil {
		t.Fatalf("TraceCausalChain: %v", err)
	}
	if want := []string{"d3@1", "d2@2"}; !sameStrings(chainIDs(got.Effects), want) {
		t.Fatalf("effects: want=%v got=%v", want, chainIDs(got.Effects))
	}
}

func TestTraceCausalChainSkipsMalformedDecisionButContinues(t *testing.T) {
	store := newStore(
		[]tracegraph.Node{
			decisionNode("d1", nil),
			decisionNode("bad", map[string]any{"confidence": 7.0}),
			decisionNode("d2", nil),
		},
		rel("r1", tracegraph.RelCaused, "d1", "bad"),
		rel("r2", tracegraph.RelCaused, "bad", "d2"),
		rel("r3", tracegraph.RelCaused, "d1", "ghost"),
	)
	got, err := TraceCausalChain(context.Background(), TraceCausalChainDeps{Graph: store}, TraceCausalChainInput{DecisionID: "d1", MaxDepth: 3})
	if err != nil {
		t.Fatalf("TraceCausalChain: %v", err)
	}
	if want := []string{"d2@2"}; !sameStrings(chainIDs(got.Effects), want) {
		t.Fatalf("effects: want=%v got=%v", want, chainIDs(got.Effects))
	}
}

func TestTraceCausalChainDirectionAndZeroDepth(t *testing.T) {
	deps := TraceCausalChainDeps{Graph: linearChainStore()}
	got, err := TraceCausalChain(context.Background(), deps, TraceCausalChainInput{DecisionID: "root", MaxDepth: 3, Direction: tracegraph.DirectionCauses})
	if err != nil {
		t.Fatalf("TraceCausalChain: %v", err)
	}
	if len(got.Effects) != 0 || len(got.Causes) != 2 {
		t.Fatalf("causes only: got causes=%v effects=%v", chainIDs(got.Causes), chainIDs(got.Effects))
	}

	got, err = TraceCausalChain(context.Background(), deps, TraceCausalChainInput{DecisionID: "does-not-exist", MaxDepth: 0})
	if err != nil {
		t.Fatalf("maxDepth=0: want no error got=%v", err)
	}
	if got.Causes == nil || got.Effects == nil || len(got.Causes)+len(got.Effects) != 0 {
		t.Fatalf("maxDepth=0: want empty non-nil lists got=%+v", got)
	}
}

func TestTraceCausalChainErrors(t *testing.T) {
	deps := TraceCausalChainDeps{Graph: linearChainStore()}
	ctx := context.Background()
	if _, err := TraceCausalChain(ctx, deps, TraceCausalChainInput{DecisionID: "root", MaxDepth: -1}); !tracegraph.IsCode(err, tracegraph.CodeValidation) {
		t.Fatalf("negative depth: want validation got=%v", err)
	}
	if _, err := TraceCausalChain(ctx, deps, TraceCausalChainInput{DecisionID: "nope", MaxDepth: 2}); !tracegraph.IsCode(err, tracegraph.CodeNotFound) {
		t.Fatalf("unknown seed: want not_found got=%v", err)
	}
	if _, err := TraceCausalChain(ctx, deps, TraceCausalChainInput{DecisionID: "cust", MaxDepth: 2}); !tracegraph.IsCode(err, tracegraph.CodeValidation) {
		t.Fatalf("non-decision seed: want validation got=%v", err)
	}
}

func TestTraceCausalChainDiscardsPartialResults(t *testing.T) {
	store := &failingStore{GraphStore: plainStore{inner: linearChainStore()}, failID: "b", err: errIndexOffline}
	got, err := TraceCausalChain(context.Background(), TraceCausalChainDeps{Graph: store}, TraceCausalChainInput{DecisionID: "root", MaxDepth: 5})
	if !tracegraph.IsCode(err, tracegraph.CodeDependencyUnavailable) {
		t.Fatalf("want dependency_unavailable got=%v", err)
	}
	if len(got.Effects) != 0 || len(got.Causes) != 0 {
		t.Fatalf("partial results leaked: %+v", got)
	}
}
