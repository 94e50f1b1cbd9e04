package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/app"
	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph"
)

// options carries the parsed flags; each operation reads the ones it needs.
type options struct {
	op, id, mode, direction, viewPath   string
	k, depth, limit                     int
	query, category, decisionType, name string
}

func main() {
	var o options
	flag.StringVar(&o.op, "op", "", "operation: "+operations)
	flag.StringVar(&o.id, "id", "", "decision, node or customer id")
	flag.IntVar(&o.k, "k", 5, "number of precedents")
	flag.StringVar(&o.mode, "mode", "hybrid", "precedent mode: semantic|structural|hybrid")
	flag.IntVar(&o.depth, "depth", 0, "traversal depth (default 3 for trace, 2 for explore)")
	flag.StringVar(&o.direction, "direction", "both", "causal direction: causes|effects|both")
	flag.IntVar(&o.limit, "limit", 50, "max results for explore, customers, customer-decisions and policies")
	flag.StringVar(&o.viewPath, "view", "", "JSON file holding the current view for expand (optional)")
	flag.StringVar(&o.query, "q", "", "customer search text: name, email or account number")
	flag.StringVar(&o.category, "category", "", "category filter for precedents and policies")
	flag.StringVar(&o.decisionType, "decision-type", "", "decision type filter for customer-decisions")
	flag.StringVar(&o.name, "name", "", "policy name substring for policies")
	flag.Parse()

	ctx := context.Background()
	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	out, err := run(ctx, a.Trace, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed (%s): %v\n", o.op, domain.CodeOf(err), err)
		a.Close()
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}

const operations = "trace|precedents|schema|expand|explore|decision|customers|customer-decisions|policies"

func run(ctx context.Context, trace tracegraph.Usecases, o options) (any, error) {
	switch strings.ToLower(strings.TrimSpace(o.op)) {
	case "decision":
		return trace.GetDecision(ctx, o.id)
	case "trace":
		dir, err := domain.ParseDirection(o.direction)
		if err != nil {
			return nil, err
		}
		depth := o.depth
		if depth == 0 {
			depth = 3
		}
		return trace.TraceCausalChain(ctx, tracegraph.TraceCausalChainInput{DecisionID: o.id, MaxDepth: depth, Direction: dir})
	case "precedents":
		m, err := domain.ParseMode(o.mode)
		if err != nil {
			return nil, err
		}
		return trace.FindPrecedents(ctx, tracegraph.FindPrecedentsInput{DecisionID: o.id, K: o.k, Mode: m, Category: o.category})
	case "expand":
		view := domain.GraphView{}
		if o.viewPath != "" {
			raw, err := os.ReadFile(o.viewPath)
			if err != nil {
				return nil, fmt.Errorf("read view: %w", err)
			}
			if err := json.Unmarshal(raw, &view); err != nil {
				return nil, domain.Validation("tracectl.expand", "invalid view file: %v", err)
			}
		}
		return trace.ExpandNode(ctx, tracegraph.ExpandNodeInput{View: view, NodeID: o.id})
	case "explore":
		depth := o.depth
		if depth == 0 {
			depth = 2
		}
		return trace.ExploreFrom(ctx, tracegraph.ExploreFromInput{NodeID: o.id, Depth: depth, Limit: o.limit})
	case "schema":
		return trace.GetSchema(ctx)
	case "customers":
		return trace.SearchCustomers(ctx, tracegraph.SearchCustomersInput{Query: o.query, Limit: o.limit})
	case "customer-decisions":
		return trace.GetCustomerDecisions(ctx, tracegraph.CustomerDecisionsInput{CustomerID: o.id, DecisionType: o.decisionType, Limit: o.limit})
	case "policies":
		return trace.ListPolicies(ctx, tracegraph.ListPoliciesInput{Category: o.category, Name: o.name, Limit: o.limit})
	default:
		return nil, domain.Validation("tracectl", "unknown -op %q (want %s)", o.op, operations)
	}
}
