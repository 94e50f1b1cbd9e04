package tracegraph

import "strings"

const (
	LabelDecision  = "Decision"
	LabelPerson    = "Person"
	LabelAccount   = "Account"
	LabelPolicy    = "Policy"
	LabelException = "Exception"
)

const (
	RelCaused           = "CAUSED"
	RelInfluenced       = "INFLUENCED"
	RelPrecedentFor     = "PRECEDENT_FOR"
	RelAbout            = "ABOUT"
	RelAppliedPolicy    = "APPLIED_POLICY"
	RelGrantedException = "GRANTED_EXCEPTION"
)

// CausalRelationshipTypes are the edge types followed by causal-chain traversal.
var CausalRelationshipTypes = []string{RelCaused, RelInfluenced}

const (
	PropSemanticEmbedding   = "semantic_embedding"
	PropStructuralEmbedding = "structural_embedding"
)

type Node struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// PrimaryLabel is the first label, used as the display type.
func (n Node) PrimaryLabel() string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func (n Node) IsDecision() bool { return n.HasLabel(LabelDecision) }

func (n Node) Clone() Node {
	out := Node{ID: n.ID}
	if n.Labels != nil {
		out.Labels = append([]string(nil), n.Labels...)
	}
	if n.Properties != nil {
		out.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

type Relationship struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	StartNodeID string         `json:"startNodeId"`
	EndNodeID   string         `json:"endNodeId"`
	Properties  map[string]any `json:"properties"`
}

func (r Relationship) IsCausal() bool {
	for _, t := range CausalRelationshipTypes {
		if r.Type == t {
			return true
		}
	}
	return false
}

// Neighborhood is the one-hop surrounding of a node, excluding the node itself.
type Neighborhood struct {
	Nodes         []Node
	Relationships []Relationship
}

// IsEmbeddingProperty reports whether a property carries a vector that should not leave the core.
func IsEmbeddingProperty(key string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(key)), "_embedding")
}

// PublicProperties returns a copy of props without embedding vectors.
func PublicProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if IsEmbeddingProperty(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// LabelCount is the population of one node label.
type LabelCount struct {
	Label string
	Count int64
}

// RelationshipPattern is one (startLabel)-[type]->(endLabel) combination and how often it occurs.
type RelationshipPattern struct {
	Type       string
	StartLabel string
	EndLabel   string
	Count      int64
}
