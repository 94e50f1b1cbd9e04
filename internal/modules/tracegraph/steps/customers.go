package steps

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

// LookupDeps serves the customer and policy lookups.
type LookupDeps struct {
	Log    *logger.Logger
	Graph  GraphStore
	Limits Limits
}

type CustomerDecisionsInput struct {
	CustomerID   string `json:"customer_id"`
	DecisionType string `json:"decision_type,omitempty"`
	Limit        int    `json:"limit"`
}

type SearchCustomersInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

var (
	customerSearchFields = []string{"id", "name", "email"}
	accountSearchFields  = []string{"id", "account_number"}
)

// GetCustomerDecisions lists the Decisions that point at a Person through ABOUT,
// newest first. Decisions without a timestamp sort last, then by id.
func GetCustomerDecisions(ctx context.Context, deps LookupDeps, in CustomerDecisionsInput) ([]tracegraph.Decision, error) {
	const op = "tracegraph.GetCustomerDecisions"
	limits := deps.Limits.normalized()
	id := strings.TrimSpace(in.CustomerID)
	out := []tracegraph.Decision{}
	if id == "" {
		return out, tracegraph.Validation(op, "customer id is required")
	}
	if err := checkLimit(op, in.Limit, limits); err != nil {
		return out, err
	}
	if in.Limit == 0 {
		return out, nil
	}

	customer, err := fetchNode(ctx, deps.Graph, limits.DependencyTimeout, op, id)
	if err != nil {
		return out, err
	}
	if !customer.HasLabel(tracegraph.LabelPerson) {
		return out, tracegraph.NotFound(op, "customer", id)
	}
	nb, err := withDependency(ctx, limits.DependencyTimeout, op, func(c context.Context) (tracegraph.Neighborhood, error) {
		return deps.Graph.GetNeighbors(c, id)
	})
	if err != nil {
		return out, err
	}

	decisionType := strings.TrimSpace(in.DecisionType)
	for _, n := range decisionsAbout(id, nb) {
		d, err := tracegraph.DecisionFromNode(n)
		if err != nil {
			if deps.Log != nil {
				deps.Log.Warn("skipping malformed decision", "customer_id", id, "decision_id", n.ID, "error", err)
			}
			continue
		}
		if decisionType != "" && !strings.EqualFold(d.DecisionType, decisionType) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Timestamp, out[j].Timestamp
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case (a == nil) != (b == nil):
			return a != nil
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > in.Limit {
		out = out[:in.Limit]
	}
	return out, nil
}

// SearchCustomers matches Persons by id, name or email and owners of Accounts whose id
// or account number matches. Results are ordered by name, then id.
func SearchCustomers(ctx context.Context, deps LookupDeps, in SearchCustomersInput) ([]tracegraph.CustomerSummary, error) {
	const op = "tracegraph.SearchCustomers"
	limits := deps.Limits.normalized()
	query := strings.TrimSpace(in.Query)
	out := []tracegraph.CustomerSummary{}
	if query == "" {
		return out, tracegraph.Validation(op, "search query is required")
	}
	if err := checkLimit(op, in.Limit, limits); err != nil {
		return out, err
	}
	if in.Limit == 0 {
		return out, nil
	}
	finder, err := nodeFinder(op, deps.Graph)
	if err != nil {
		return out, err
	}

	people, err := findNodes(ctx, finder, limits, op, tracegraph.NodeQuery{
		Label: tracegraph.LabelPerson, Text: query, TextFields: customerSearchFields, Limit: in.Limit,
	})
	if err != nil {
		return out, err
	}
	accounts, err := findNodes(ctx, finder, limits, op, tracegraph.NodeQuery{
		Label: tracegraph.LabelAccount, Text: query, TextFields: accountSearchFields, Limit: in.Limit,
	})
	if err != nil {
		return out, err
	}

	candidates := map[string]tracegraph.Node{}
	for _, p := range people {
		candidates[p.ID] = p
	}
	owners, err := neighborhoods(ctx, deps.Graph, limits, op, nodeIDs(accounts))
	if err != nil {
		return out, err
	}
	for _, nb := range owners {
		for _, n := range nb.Nodes {
			if n.HasLabel(tracegraph.LabelPerson) {
				candidates[n.ID] = n
			}
		}
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	around, err := neighborhoods(ctx, deps.Graph, limits, op, ids)
	if err != nil {
		return out, err
	}
	for _, id := range ids {
		nb, ok := around[id]
		if !ok {
			continue
		}
		s := tracegraph.CustomerSummaryFromNode(candidates[id])
		s.DecisionCount = len(decisionsAbout(id, nb))
		for _, n := range nb.Nodes {
			if n.HasLabel(tracegraph.LabelAccount) {
				s.AccountCount++
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > in.Limit {
		out = out[:in.Limit]
	}
	return out, nil
}

// decisionsAbout returns the Decision nodes with an ABOUT edge ending at id.
func decisionsAbout(id string, nb tracegraph.Neighborhood) []tracegraph.Node {
	byID := make(map[string]tracegraph.Node, len(nb.Nodes))
	for _, n := range nb.Nodes {
		byID[n.ID] = n
	}
	seen := map[string]bool{}
	var out []tracegraph.Node
	for _, r := range nb.Relationships {
		if r.Type != tracegraph.RelAbout || r.EndNodeID != id || seen[r.StartNodeID] {
			continue
		}
		if n, ok := byID[r.StartNodeID]; ok && n.IsDecision() {
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out
}

// neighborhoods fetches several neighborhoods concurrently. Ids that vanished between
// lookup and fetch are left out of the result.
func neighborhoods(ctx context.Context, store GraphStore, limits Limits, op string, ids []string) (map[string]tracegraph.Neighborhood, error) {
	results := make([]tracegraph.Neighborhood, len(ids))
	found := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limits.ExpansionConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			nb, err := withDependency(gctx, limits.DependencyTimeout, op, func(c context.Context) (tracegraph.Neighborhood, error) {
				return store.GetNeighbors(c, id)
			})
			if tracegraph.IsCode(err, tracegraph.CodeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i], found[i] = nb, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]tracegraph.Neighborhood, len(ids))
	for i, id := range ids {
		if found[i] {
			out[id] = results[i]
		}
	}
	return out, nil
}

func nodeFinder(op string, store GraphStore) (NodeFinder, error) {
	finder, ok := store.(NodeFinder)
	if !ok {
		return nil, tracegraph.NewError(tracegraph.CodeDependencyUnavailable, op, "graph store does not support label lookups", nil)
	}
	return finder, nil
}

func findNodes(ctx context.Context, finder NodeFinder, limits Limits, op string, q tracegraph.NodeQuery) ([]tracegraph.Node, error) {
	return withDependency(ctx, limits.DependencyTimeout, op, func(c context.Context) ([]tracegraph.Node, error) {
		return finder.FindNodes(c, q)
	})
}

func nodeIDs(nodes []tracegraph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func checkLimit(op string, limit int, limits Limits) error {
	if limit < 0 {
		return tracegraph.Validation(op, "limit must be >= 0 (got %d)", limit)
	}
	if limit > limits.MaxK {
		return tracegraph.Validation(op, "limit must be <= %d (got %d)", limits.MaxK, limit)
	}
	return nil
}
