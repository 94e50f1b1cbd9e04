package steps

import (
	"context"
	"fmt"
	"testing"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

func TestGetSchemaCountsLabels(t *testing.T) {
	var nodes []tracegraph.Node
	var rels []tracegraph.Relationship
	for i := 0; i < 200; i++ {
		nodes = append(nodes, labelledNode(fmt.Sprintf("person-%03d", i), tracegraph.LabelPerson))
	}
	for i := 0; i < 600; i++ {
		id := fmt.Sprintf("decision-%03d", i)
		nodes = append(nodes, decisionNode(id, nil))
		rels = append(rels, rel("about-"+id, tracegraph.RelAbout, id, fmt.Sprintf("person-%03d", i%200)))
	}
	nodes = append(nodes, labelledNode("policy-1", tracegraph.LabelPolicy))
	rels = append(rels,
		rel("about-policy", tracegraph.RelAbout, "decision-000", "policy-1"),
		rel("applied", tracegraph.RelAppliedPolicy, "decision-001", "policy-1"),
		rel("caused", tracegraph.RelCaused, "decision-001", "decision-002"),
		rel("orphan", tracegraph.RelGrantedException, "decision-003", "missing-exception"),
	)

	rec := newRecorder()
	view, err := GetSchema(context.Background(), GetSchemaDeps{Schema: newStore(nodes, rels...), Metrics: rec})
	if err != nil {
		t.Fatalf("GetSchema: %v", err)
	}
	assertViewInvariants(t, view)

	counts := map[string]any{}
	for _, n := range view.Nodes {
		if n.Properties["isSchemaNode"] != true {
			t.Fatalf("node %s missing isSchemaNode", n.ID)
		}
		counts[n.PrimaryLabel()] = n.Properties["count"]
	}
	if counts[tracegraph.LabelPerson] != int64(200) || counts[tracegraph.LabelDecision] != int64(600) {
		t.Fatalf("label counts: got=%v", counts)
	}

	byType := map[string]tracegraph.Relationship{}
	for _, r := range view.Relationships {
		byType[r.Type] = r
	}
	about := byType[tracegraph.RelAbout]
	if about.StartNodeID != SchemaNodeID(tracegraph.LabelDecision) || about.EndNodeID != SchemaNodeID(tracegraph.LabelPerson) {
		t.Fatalf("ABOUT should join Decision->Person: got=%+v", about)
	}
	if about.Properties["count"] != int64(601) || about.Properties["patternCount"] != int64(600) {
		t.Fatalf("ABOUT counts: got=%v", about.Properties)
	}
	if _, ok := byType[tracegraph.RelGrantedException]; ok {
		t.Fatalf("relationship with a missing endpoint label must be excluded")
	}
	if view.DanglingExcluded != 1 || rec.dangling["schema"] != 1 {
		t.Fatalf("dangling: view=%d metric=%v", view.DanglingExcluded, rec.dangling)
	}
}

func TestBuildSchemaViewTieBreaksLexicographically(t *testing.T) {
	labels := []tracegraph.LabelCount{{Label: "A", Count: 1}, {Label: "B", Count: 1}, {Label: "C", Count: 1}}
	patterns := []tracegraph.RelationshipPattern{
		{Type: "LINK", StartLabel: "C", EndLabel: "A", Count: 5},
		{Type: "LINK", StartLabel: "B", EndLabel: "C", Count: 5},
		{Type: "LINK", StartLabel: "B", EndLabel: "A", Count: 5},
	}
	view, dangling := BuildSchemaView(labels, patterns)
	if dangling != 0 || len(view.Relationships) != 1 {
		t.Fatalf("relationships=%d dangling=%d", len(view.Relationships), dangling)
	}
	r := view.Relationships[0]
	if r.StartNodeID != "schema:B" || r.EndNodeID != "schema:A" {
		t.Fatalf("tie-break: want B->A got=%s->%s", r.StartNodeID, r.EndNodeID)
	}
}

func TestGetDecision(t *testing.T) {
	store := newStore([]tracegraph.Node{
		decisionNode("d1", map[string]any{"confidence": 0.4, "reasoning": "within policy"}),
		labelledNode("p1", tracegraph.LabelPerson),
	})
	deps := GetDecisionDeps{Graph: store}
	d, err := GetDecision(context.Background(), deps, "d1")
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if d.Reasoning != "within policy" || d.Confidence == nil || *d.Confidence != 0.4 {
		t.Fatalf("decision: got=%+v", d)
	}
	if _, err := GetDecision(context.Background(), deps, "p1"); !tracegraph.IsCode(err, tracegraph.CodeValidation) {
		t.Fatalf("person: want validation got=%v", err)
	}
	if _, err := GetDecision(context.Background(), deps, "zzz"); !tracegraph.IsCode(err, tracegraph.CodeNotFound) {
		t.Fatalf("missing: want not_found got=%v", err)
	}
}
