package steps

import (
	"context"
	"sort"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

type ListPoliciesInput struct {
	Category string `json:"category,omitempty"`
	// Name matches a case-insensitive substring of the policy name.
	Name  string `json:"name,omitempty"`
	Limit int    `json:"limit"`
}

// ListPolicies returns Policy nodes filtered by category and name, ordered by name then id.
func ListPolicies(ctx context.Context, deps LookupDeps, in ListPoliciesInput) ([]tracegraph.Policy, error) {
	const op = "tracegraph.ListPolicies"
	limits := deps.Limits.normalized()
	out := []tracegraph.Policy{}
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

	q := tracegraph.NodeQuery{Label: tracegraph.LabelPolicy, Limit: in.Limit}
	if category := strings.TrimSpace(in.Category); category != "" {
		q.Equals = map[string]string{"category": category}
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		q.Text, q.TextFields = name, []string{"name"}
	}
	nodes, err := findNodes(ctx, finder, limits, op, q)
	if err != nil {
		return out, err
	}
	for _, n := range nodes {
		p, err := tracegraph.PolicyFromNode(n)
		if err != nil {
			// The store ignored the label filter.
			return []tracegraph.Policy{}, tracegraph.Wrap(tracegraph.CodeInconsistentData, op, err)
		}
		out = append(out, p)
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
