package steps

import (
	"context"
	"sort"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

const schemaIDPrefix = "schema:"

type GetSchemaDeps struct {
	Log     *logger.Logger
	Schema  SchemaSource
	Metrics Recorder
	Limits  Limits
}

// SchemaNodeID is the synthetic id of the schema node for a label.
func SchemaNodeID(label string) string { return schemaIDPrefix + label }

// GetSchema summarizes the store as one node per label and one relationship per
// relationship type, joining the label pair that type most often connects.
func GetSchema(ctx context.Context, deps GetSchemaDeps) (tracegraph.GraphView, error) {
	const op = "tracegraph.GetSchema"
	limits := deps.Limits.normalized()

	labels, err := withDependency(ctx, limits.DependencyTimeout, op, deps.Schema.LabelCounts)
	if err != nil {
		return tracegraph.GraphView{}, err
	}
	patterns, err := withDependency(ctx, limits.DependencyTimeout, op, deps.Schema.RelationshipPatterns)
	if err != nil {
		return tracegraph.GraphView{}, err
	}

	view, dangling := BuildSchemaView(labels, patterns)
	if dangling > 0 {
		incDangling(deps.Metrics, "schema", dangling)
		if deps.Log != nil {
			deps.Log.Warn("schema relationships reference unknown labels", "count", dangling)
		}
	}
	return view, nil
}

// BuildSchemaView is the pure aggregation behind GetSchema. It returns the view and the
// number of relationship types excluded because an endpoint label has no schema node.
func BuildSchemaView(labels []tracegraph.LabelCount, patterns []tracegraph.RelationshipPattern) (tracegraph.GraphView, int) {
	counts := map[string]int64{}
	for _, lc := range labels {
		label := strings.TrimSpace(lc.Label)
		if label == "" {
			continue
		}
		counts[label] += lc.Count
	}
	names := make([]string, 0, len(counts))
	for label := range counts {
		names = append(names, label)
	}
	sort.Strings(names)

	view := tracegraph.GraphView{
		Nodes:         make([]tracegraph.Node, 0, len(names)),
		Relationships: []tracegraph.Relationship{},
	}
	for _, label := range names {
		view.Nodes = append(view.Nodes, tracegraph.Node{
			ID:     SchemaNodeID(label),
			Labels: []string{label},
			Properties: map[string]any{
				"isSchemaNode": true,
				"name":         label,
				"count":        counts[label],
			},
		})
	}

	type typeAgg struct {
		best  tracegraph.RelationshipPattern
		total int64
		seen  bool
	}
	byType := map[string]*typeAgg{}
	for _, p := range patterns {
		relType := strings.TrimSpace(p.Type)
		if relType == "" {
			continue
		}
		agg := byType[relType]
		if agg == nil {
			agg = &typeAgg{}
			byType[relType] = agg
		}
		agg.total += p.Count
		if !agg.seen || betterPattern(p, agg.best) {
			agg.best = p
			agg.seen = true
		}
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	dangling := 0
	for _, t := range types {
		agg := byType[t]
		start, end := strings.TrimSpace(agg.best.StartLabel), strings.TrimSpace(agg.best.EndLabel)
		if _, ok := counts[start]; !ok {
			dangling++
			continue
		}
		if _, ok := counts[end]; !ok {
			dangling++
			continue
		}
		view.Relationships = append(view.Relationships, tracegraph.Relationship{
			ID:          SchemaNodeID(t),
			Type:        t,
			StartNodeID: SchemaNodeID(start),
			EndNodeID:   SchemaNodeID(end),
			Properties: map[string]any{
				"isSchemaNode": true,
				"name":         t,
				"count":        agg.total,
				"patternCount": agg.best.Count,
			},
		})
	}
	view.DanglingExcluded = dangling
	return view, dangling
}

// betterPattern orders candidates by count, then start label, then end label.
func betterPattern(a, b tracegraph.RelationshipPattern) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if a.StartLabel != b.StartLabel {
		return a.StartLabel < b.StartLabel
	}
	return a.EndLabel < b.EndLabel
}
