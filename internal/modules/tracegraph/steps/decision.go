package steps

import (
	"context"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

type GetDecisionDeps struct {
	Graph  GraphStore
	Limits Limits
}

func GetDecision(ctx context.Context, deps GetDecisionDeps, id string) (tracegraph.Decision, error) {
	const op = "tracegraph.GetDecision"
	limits := deps.Limits.normalized()
	id = strings.TrimSpace(id)
	if id == "" {
		return tracegraph.Decision{}, tracegraph.Validation(op, "decision id is required")
	}
	node, err := fetchNode(ctx, deps.Graph, limits.DependencyTimeout, op, id)
	if err != nil {
		return tracegraph.Decision{}, err
	}
	return tracegraph.DecisionFromNode(node)
}
