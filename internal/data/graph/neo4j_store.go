package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
	"github.com/yungbote/decisiontrace-backend/internal/platform/neo4jdb"
)

const defaultNeighborLimit = 500

// Neo4jStore serves GraphStore, CausalNeighborSource and SchemaSource from Neo4j.
// All queries run in read transactions.
type Neo4jStore struct {
	client        *neo4jdb.Client
	log           *logger.Logger
	neighborLimit int
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger, neighborLimit int) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	if neighborLimit <= 0 {
		neighborLimit = defaultNeighborLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Neo4jStore{client: client, log: log.With("store", "Neo4jGraph"), neighborLimit: neighborLimit}, nil
}

var (
	matchByID = `MATCH (n) WHERE n.id = $id OR elementId(n) = $id
WITH n LIMIT 1
`
	returnRel = fmt.Sprintf(`%s AS rid, type(r) AS rtype, %s AS rstart, %s AS rend, properties(r) AS rprops`,
		idExpr("r"), idExpr("startNode(r)"), idExpr("endNode(r)"))

	getNodeQuery = matchByID + fmt.Sprintf(`RETURN %s AS id, labels(n) AS labels, properties(n) AS props`, idExpr("n"))

	neighborsQuery = matchByID + fmt.Sprintf(`OPTIONAL MATCH (n)-[r]-(m)
WITH n, r, m ORDER BY %[1]s LIMIT $limit
RETURN %[2]s AS id, %[3]s,
       %[4]s AS m_id, labels(m) AS m_labels, properties(m) AS m_props`,
		idExpr("r"), idExpr("n"), returnRel, idExpr("m"))

	incomingCausalQuery = matchByID + fmt.Sprintf(`OPTIONAL MATCH (n)<-[r]-(m) WHERE type(r) IN $types
WITH n, r, m ORDER BY %[1]s LIMIT $limit
RETURN %[2]s AS id, %[3]s,
       %[4]s AS m_id, labels(m) AS m_labels, properties(m) AS m_props`,
		idExpr("r"), idExpr("n"), returnRel, idExpr("m"))

	outgoingCausalQuery = matchByID + fmt.Sprintf(`OPTIONAL MATCH (n)-[r]->(m) WHERE type(r) IN $types
WITH n, r, m ORDER BY %[1]s LIMIT $limit
RETURN %[2]s AS id, %[3]s,
       %[4]s AS m_id, labels(m) AS m_labels, properties(m) AS m_props`,
		idExpr("r"), idExpr("n"), returnRel, idExpr("m"))

	// The property lookup stays index-backed; element ids only cover nodes without an id property.
	relationshipsAmongQuery = fmt.Sprintf(`MATCH (a) WHERE a.id IN $ids
WITH collect(a) AS byProp
OPTIONAL MATCH (e) WHERE elementId(e) IN $ids AND e.id IS NULL
WITH byProp + collect(e) AS visible
UNWIND visible AS a
MATCH (a)-[r]->(b)
WHERE b IN visible AND NOT %[1]s IN $exclude
RETURN DISTINCT %[2]s
ORDER BY rid`, idExpr("r"), returnRel)

	labelCountsQuery = `MATCH (n)
UNWIND labels(n) AS label
RETURN label, count(*) AS count
ORDER BY label`

	relationshipPatternsQuery = `MATCH (a)-[r]->(b)
RETURN type(r) AS type, head(labels(a)) AS start, head(labels(b)) AS end, count(*) AS count
ORDER BY type, start, end`
)

func (s *Neo4jStore) GetNode(ctx context.Context, id string) (tracegraph.Node, error) {
	const op = "graph.Neo4jStore.GetNode"
	rows, err := readRows(ctx, s.client, getNodeQuery, map[string]any{"id": id})
	if err != nil {
		return tracegraph.Node{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return tracegraph.Node{}, tracegraph.NotFound(op, "node", id)
	}
	n, ok := nodeFromRecord(rows[0], "")
	if !ok {
		return tracegraph.Node{}, tracegraph.NotFound(op, "node", id)
	}
	return n, nil
}

func (s *Neo4jStore) GetNeighbors(ctx context.Context, id string) (tracegraph.Neighborhood, error) {
	return s.neighborhood(ctx, "graph.Neo4jStore.GetNeighbors", neighborsQuery, map[string]any{
		"id":    id,
		"limit": s.neighborLimit,
	})
}

func (s *Neo4jStore) GetCausalNeighbors(ctx context.Context, id string, incoming bool, relTypes []string) (tracegraph.Neighborhood, error) {
	q := outgoingCausalQuery
	if incoming {
		q = incomingCausalQuery
	}
	return s.neighborhood(ctx, "graph.Neo4jStore.GetCausalNeighbors", q, map[string]any{
		"id":    id,
		"types": relTypes,
		"limit": s.neighborLimit,
	})
}

// neighborhood decodes neighbor rows. Zero rows means the center node does not exist;
// a row with a null relationship means it exists without neighbors.
func (s *Neo4jStore) neighborhood(ctx context.Context, op, cypher string, params map[string]any) (tracegraph.Neighborhood, error) {
	id, _ := params["id"].(string)
	rows, err := readRows(ctx, s.client, cypher, params)
	if err != nil {
		return tracegraph.Neighborhood{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return tracegraph.Neighborhood{}, tracegraph.NotFound(op, "node", id)
	}
	centerID := recString(rows[0], "id")
	out := tracegraph.Neighborhood{}
	seenNodes := map[string]bool{centerID: true}
	seenRels := map[string]bool{}
	for _, rec := range rows {
		r, ok := relationshipFromRecord(rec)
		if !ok || seenRels[r.ID] {
			continue
		}
		seenRels[r.ID] = true
		out.Relationships = append(out.Relationships, r)
		if m, ok := nodeFromRecord(rec, "m_"); ok && !seenNodes[m.ID] {
			seenNodes[m.ID] = true
			out.Nodes = append(out.Nodes, m)
		}
	}
	if len(rows) >= s.neighborLimit {
		s.log.Warn("neighbor fetch truncated", "node_id", centerID, "limit", s.neighborLimit)
	}
	return out, nil
}

func (s *Neo4jStore) GetRelationshipsAmong(ctx context.Context, ids []string, exclude map[string]bool) ([]tracegraph.Relationship, error) {
	const op = "graph.Neo4jStore.GetRelationshipsAmong"
	if len(ids) < 1 {
		return nil, nil
	}
	excluded := make([]string, 0, len(exclude))
	for id, skip := range exclude {
		if skip && strings.TrimSpace(id) != "" {
			excluded = append(excluded, id)
		}
	}
	rows, err := readRows(ctx, s.client, relationshipsAmongQuery, map[string]any{
		"ids":     ids,
		"exclude": excluded,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]tracegraph.Relationship, 0, len(rows))
	for _, rec := range rows {
		if r, ok := relationshipFromRecord(rec); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

var cypherLabel = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// findNodesQuery interpolates only a validated label; every value is a parameter.
func findNodesQuery(label string) string {
	match := "MATCH (n)"
	if label != "" {
		match = fmt.Sprintf("MATCH (n:`%s`)", label)
	}
	return match + fmt.Sprintf(`
WITH n, %s AS nid
WHERE all(k IN keys($equals) WHERE toLower(toString(coalesce(n[k], ''))) = toLower($equals[k]))
  AND ($text = '' OR any(f IN $fields WHERE toLower(toString(CASE f WHEN 'id' THEN nid ELSE coalesce(n[f], '') END)) CONTAINS $text))
RETURN nid AS id, labels(n) AS labels, properties(n) AS props
ORDER BY id
LIMIT $limit`, idExpr("n"))
}

// FindNodes caps unlimited queries at the neighbor limit.
func (s *Neo4jStore) FindNodes(ctx context.Context, q tracegraph.NodeQuery) ([]tracegraph.Node, error) {
	const op = "graph.Neo4jStore.FindNodes"
	label := strings.TrimSpace(q.Label)
	if label != "" && !cypherLabel.MatchString(label) {
		return nil, tracegraph.Validation(op, "invalid label %q", label)
	}
	limit := q.Limit
	if limit <= 0 || limit > s.neighborLimit {
		limit = s.neighborLimit
	}
	equals := make(map[string]any, len(q.Equals))
	for k, v := range q.Equals {
		equals[k] = v
	}
	fields := q.TextFields
	if fields == nil {
		fields = []string{}
	}
	rows, err := readRows(ctx, s.client, findNodesQuery(label), map[string]any{
		"equals": equals,
		"text":   strings.ToLower(strings.TrimSpace(q.Text)),
		"fields": fields,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]tracegraph.Node, 0, len(rows))
	for _, rec := range rows {
		if n, ok := nodeFromRecord(rec, ""); ok {
			n.Properties = tracegraph.PublicProperties(n.Properties)
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Neo4jStore) LabelCounts(ctx context.Context) ([]tracegraph.LabelCount, error) {
	rows, err := readRows(ctx, s.client, labelCountsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("graph.Neo4jStore.LabelCounts: %w", err)
	}
	out := make([]tracegraph.LabelCount, 0, len(rows))
	for _, rec := range rows {
		out = append(out, tracegraph.LabelCount{Label: recString(rec, "label"), Count: recInt64(rec, "count")})
	}
	return out, nil
}

func (s *Neo4jStore) RelationshipPatterns(ctx context.Context) ([]tracegraph.RelationshipPattern, error) {
	rows, err := readRows(ctx, s.client, relationshipPatternsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("graph.Neo4jStore.RelationshipPatterns: %w", err)
	}
	out := make([]tracegraph.RelationshipPattern, 0, len(rows))
	for _, rec := range rows {
		out = append(out, tracegraph.RelationshipPattern{
			Type:       recString(rec, "type"),
			StartLabel: recString(rec, "start"),
			EndLabel:   recString(rec, "end"),
			Count:      recInt64(rec, "count"),
		})
	}
	return out, nil
}
