package graph

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

func TestMemoryStoreNeighborsAndAmong(t *testing.T) {
	s := NewMemoryStore(tracegraph.GraphView{
		Nodes: []tracegraph.Node{
			{ID: "a", Labels: []string{"Decision"}, Properties: map[string]any{"semantic_embedding": []any{1.0, 0.0}, "status": "approved"}},
			{ID: "b", Labels: []string{"Decision"}},
			{ID: "c", Labels: []string{"Person"}},
		},
		Relationships: []tracegraph.Relationship{
			{ID: "ab", Type: "CAUSED", StartNodeID: "a", EndNodeID: "b"},
			{ID: "ca", Type: "ABOUT", StartNodeID: "c", EndNodeID: "a"},
			{ID: "aa", Type: "INFLUENCED", StartNodeID: "a", EndNodeID: "a"},
			{ID: "bc", Type: "ABOUT", StartNodeID: "b", EndNodeID: "c"},
		},
	})
	ctx := context.Background()

	n, err := s.GetNode(ctx, "a")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if _, ok := n.Properties["semantic_embedding"]; ok {
		t.Fatalf("embeddings must be stripped from served nodes")
	}
	if n.Properties["status"] != "approved" {
		t.Fatalf("status: got=%v", n.Properties["status"])
	}

	hood, err := s.GetNeighbors(ctx, "a")
	if err != nil {
		t.Fatalf("GetNeighbors: %v", err)
	}
	if len(hood.Relationships) != 3 || len(hood.Nodes) != 2 {
		t.Fatalf("neighbors: rels=%d nodes=%d", len(hood.Relationships), len(hood.Nodes))
	}
	for _, nb := range hood.Nodes {
		if nb.ID == "a" {
			t.Fatalf("neighborhood must not contain the center node")
		}
	}

	causal, err := s.GetCausalNeighbors(ctx, "b", true, tracegraph.CausalRelationshipTypes)
	if err != nil {
		t.Fatalf("GetCausalNeighbors: %v", err)
	}
	if len(causal.Relationships) != 1 || causal.Relationships[0].ID != "ab" {
		t.Fatalf("causal incoming: got=%+v", causal.Relationships)
	}

	among, err := s.GetRelationshipsAmong(ctx, []string{"a", "b", "c"}, map[string]bool{"ab": true})
	if err != nil {
		t.Fatalf("GetRelationshipsAmong: %v", err)
	}
	var ids []string
	for _, r := range among {
		ids = append(ids, r.ID)
	}
	if strings.Join(ids, ",") != "aa,bc,ca" {
		t.Fatalf("among: want=aa,bc,ca got=%v", ids)
	}

	if _, err := s.GetNeighbors(ctx, "zzz"); !tracegraph.IsCode(err, tracegraph.CodeNotFound) {
		t.Fatalf("missing: want not_found got=%v", err)
	}
}

func TestMemorySimilarityRanksByCosine(t *testing.T) {
	s := NewMemoryStore(tracegraph.GraphView{Nodes: []tracegraph.Node{
		{ID: "seed", Labels: []string{"Decision"}, Properties: map[string]any{"structural_embedding": []any{1.0, 0.0}}},
		{ID: "same", Labels: []string{"Decision"}, Properties: map[string]any{"structural_embedding": []any{2.0, 0.0}}},
		{ID: "orth", Labels: []string{"Decision"}, Properties: map[string]any{"structural_embedding": []any{0.0, 1.0}}},
		{ID: "opp", Labels: []string{"Decision"}, Properties: map[string]any{"structural_embedding": []any{-1.0, 0.0}}},
		{ID: "nodim", Labels: []string{"Decision"}, Properties: map[string]any{"structural_embedding": []any{1.0}}},
		{ID: "person", Labels: []string{"Person"}, Properties: map[string]any{"structural_embedding": []any{1.0, 0.0}}},
	}})
	sim := NewMemorySimilarity(s)
	got, err := sim.TopK(context.Background(), tracegraph.SpaceStructural, "seed", 2)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(got) != 2 || got[0].ItemID != "same" || got[1].ItemID != "orth" {
		t.Fatalf("ranking: got=%+v", got)
	}
	if got[0].Score != 1 || got[1].Score != 0.5 {
		t.Fatalf("scores: want 1,0.5 got=%v,%v", got[0].Score, got[1].Score)
	}
	if _, err := sim.TopK(context.Background(), tracegraph.SpaceSemantic, "seed", 2); !tracegraph.IsCode(err, tracegraph.CodeInconsistentData) {
		t.Fatalf("missing embedding: want inconsistent_data got=%v", err)
	}
}

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	raw := `{"nodes":[{"id":"d1","labels":["Decision"],"properties":{"confidence":0.5}}],
"relationships":[{"id":"r1","type":"CAUSED","startNodeId":"d1","endNodeId":"d1","properties":{}}]}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	patterns, err := s.RelationshipPatterns(context.Background())
	if err != nil || len(patterns) != 1 || patterns[0].StartLabel != "Decision" {
		t.Fatalf("patterns: got=%+v err=%v", patterns, err)
	}
	if _, err := LoadSnapshot(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("missing file: want error")
	}
}

func TestNeo4jRecordDecoding(t *testing.T) {
	rec := &neo4j.Record{
		Keys: []string{"id", "rid", "rtype", "rstart", "rend", "rprops", "m_id", "m_labels", "m_props"},
		Values: []any{
			"d1", "r1", "CAUSED", "d1", "d2", map[string]any{"weight": 0.5},
			"d2", []any{"Decision"}, map[string]any{"status": "denied", "semantic_embedding": []any{0.1}},
		},
	}
	r, ok := relationshipFromRecord(rec)
	if !ok || r.Type != "CAUSED" || r.EndNodeID != "d2" || r.Properties["weight"] != 0.5 {
		t.Fatalf("relationship: got=%+v ok=%v", r, ok)
	}
	m, ok := nodeFromRecord(rec, "m_")
	if !ok || m.PrimaryLabel() != "Decision" || m.Properties["status"] != "denied" {
		t.Fatalf("node: got=%+v ok=%v", m, ok)
	}
	if _, leaked := m.Properties["semantic_embedding"]; leaked {
		t.Fatalf("embedding leaked into node properties")
	}

	empty := &neo4j.Record{Keys: []string{"id", "rid"}, Values: []any{"d1", nil}}
	if _, ok := relationshipFromRecord(empty); ok {
		t.Fatalf("null relationship should decode as absent")
	}
}

func TestMemoryStoreFindNodes(t *testing.T) {
	s := NewMemoryStore(tracegraph.GraphView{Nodes: []tracegraph.Node{
		{ID: "pol-2", Labels: []string{tracegraph.LabelPolicy}, Properties: map[string]any{"name": "Wire Limit", "category": "Payments"}},
		{ID: "pol-1", Labels: []string{tracegraph.LabelPolicy}, Properties: map[string]any{"name": "Credit Limit", "category": "credit", "semantic_embedding": []any{1.0}}},
		{ID: "cust-1", Labels: []string{tracegraph.LabelPerson}, Properties: map[string]any{"name": "Limit Lane"}},
	}})
	ctx := context.Background()

	got, err := s.FindNodes(ctx, tracegraph.NodeQuery{Label: tracegraph.LabelPolicy, Text: "LIMIT", TextFields: []string{"name"}})
	if err != nil {
		t.Fatalf("FindNodes: %v", err)
	}
	if len(got) != 2 || got[0].ID != "pol-1" || got[1].ID != "pol-2" {
		t.Fatalf("text match: want=[pol-1 pol-2] got=%+v", got)
	}
	if _, ok := got[0].Properties["semantic_embedding"]; ok {
		t.Fatalf("embeddings must not leave the store")
	}

	got, _ = s.FindNodes(ctx, tracegraph.NodeQuery{Label: tracegraph.LabelPolicy, Equals: map[string]string{"category": "payments"}})
	if len(got) != 1 || got[0].ID != "pol-2" {
		t.Fatalf("equals match: want=[pol-2] got=%+v", got)
	}
	got, _ = s.FindNodes(ctx, tracegraph.NodeQuery{Label: tracegraph.LabelPerson, Text: "cust", TextFields: []string{"id"}, Limit: 1})
	if len(got) != 1 || got[0].ID != "cust-1" {
		t.Fatalf("id match: want=[cust-1] got=%+v", got)
	}
	got, _ = s.FindNodes(ctx, tracegraph.NodeQuery{Label: tracegraph.LabelPolicy, Limit: 1})
	if len(got) != 1 {
		t.Fatalf("limit: want=1 got=%d", len(got))
	}
}

func TestFindNodesQueryParameterizesValues(t *testing.T) {
	q := findNodesQuery(tracegraph.LabelPolicy)
	for _, want := range []string{"MATCH (n:`Policy`)", "$equals", "$text", "$fields", "LIMIT $limit", "coalesce(n.id, elementId(n)) AS nid"} {
		if !strings.Contains(q, want) {
			t.Fatalf("find query missing %q:\n%s", want, q)
		}
	}
	if strings.Contains(q, "%!") {
		t.Fatalf("find query malformed:\n%s", q)
	}
	if !strings.HasPrefix(findNodesQuery(""), "MATCH (n)\n") {
		t.Fatalf("unlabelled query: got=%s", findNodesQuery(""))
	}
	if cypherLabel.MatchString("Policy`) DETACH DELETE n //") {
		t.Fatalf("label pattern must reject injected text")
	}
}

func TestNeo4jQueriesUseStableIDs(t *testing.T) {
	for name, q := range map[string]string{
		"neighbors": neighborsQuery,
		"among":     relationshipsAmongQuery,
		"vector":    vectorIndexQuery,
		"gds":       gdsCosineQuery,
	} {
		if !strings.Contains(q, "coalesce(") || strings.Contains(q, "%!") {
			t.Fatalf("%s query malformed:\n%s", name, q)
		}
	}
	if !strings.Contains(relationshipsAmongQuery, "a.id IN $ids") || strings.Contains(relationshipsAmongQuery, " OR elementId(") {
		t.Fatalf("among query must look ids up with a list predicate:\n%s", relationshipsAmongQuery)
	}
	if !strings.Contains(relationshipsAmongQuery, "elementId(e) IN $ids AND e.id IS NULL") {
		t.Fatalf("among query must fall back to element ids for nodes without an id:\n%s", relationshipsAmongQuery)
	}
	if !strings.Contains(incomingCausalQuery, "(n)<-[r]-(m)") || !strings.Contains(outgoingCausalQuery, "(n)-[r]->(m)") {
		t.Fatalf("causal queries must be directional")
	}
}
