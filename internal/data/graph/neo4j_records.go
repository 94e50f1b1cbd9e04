package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/neo4jdb"
)

// Node and relationship ids prefer the ingested `id` property and fall back to elementId.
func idExpr(v string) string { return fmt.Sprintf("coalesce(%[1]s.id, elementId(%[1]s))", v) }

func readRows(ctx context.Context, client *neo4jdb.Client, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	rows, _ := out.([]*neo4j.Record)
	return rows, nil
}

func recValue(rec *neo4j.Record, key string) any {
	if rec == nil {
		return nil
	}
	v, _ := rec.Get(key)
	return v
}

func recString(rec *neo4j.Record, key string) string {
	switch v := recValue(rec, key).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func recInt64(rec *neo4j.Record, key string) int64 {
	switch v := recValue(rec, key).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func recFloat(rec *neo4j.Record, key string) float64 {
	switch v := recValue(rec, key).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func recStrings(rec *neo4j.Record, key string) []string {
	raw, ok := recValue(rec, key).([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func recProps(rec *neo4j.Record, key string) map[string]any {
	raw, ok := recValue(rec, key).(map[string]any)
	if !ok || raw == nil {
		return map[string]any{}
	}
	return tracegraph.PublicProperties(raw)
}

// nodeFromRecord reads `<prefix>id`, `<prefix>labels` and `<prefix>props`.
func nodeFromRecord(rec *neo4j.Record, prefix string) (tracegraph.Node, bool) {
	id := recString(rec, prefix+"id")
	if id == "" {
		return tracegraph.Node{}, false
	}
	return tracegraph.Node{
		ID:         id,
		Labels:     recStrings(rec, prefix+"labels"),
		Properties: recProps(rec, prefix+"props"),
	}, true
}

// relationshipFromRecord reads `rid`, `rtype`, `rstart`, `rend` and `rprops`.
func relationshipFromRecord(rec *neo4j.Record) (tracegraph.Relationship, bool) {
	id := recString(rec, "rid")
	if id == "" {
		return tracegraph.Relationship{}, false
	}
	return tracegraph.Relationship{
		ID:          id,
		Type:        recString(rec, "rtype"),
		StartNodeID: recString(rec, "rstart"),
		EndNodeID:   recString(rec, "rend"),
		Properties:  recProps(rec, "rprops"),
	}, true
}
