package tracegraph

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Decision is the typed view of a node labelled Decision.
type Decision struct {
	ID           string     `json:"id"`
	Labels       []string   `json:"labels"`
	DecisionType string     `json:"decision_type,omitempty"`
	Category     string     `json:"category,omitempty"`
	Status       string     `json:"status,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	Reasoning    string     `json:"reasoning,omitempty"`
	// Nil when absent; zero is a real confidence.
	Confidence  *float64 `json:"confidence,omitempty"`
	RiskFactors []string `json:"risk_factors,omitempty"`

	SemanticEmbedding   []float64 `json:"-"`
	StructuralEmbedding []float64 `json:"-"`

	Properties map[string]any `json:"properties,omitempty"`
}

var decisionFields = map[string]bool{
	"id":                    true,
	"decision_type":         true,
	"category":              true,
	"status":                true,
	"timestamp":             true,
	"reasoning":             true,
	"confidence":            true,
	"risk_factors":          true,
	PropSemanticEmbedding:   true,
	PropStructuralEmbedding: true,
}

// DecisionFromNode validates and converts a node. Decision-specific fields are only
// checked when the node carries the Decision label.
func DecisionFromNode(n Node) (Decision, error) {
	const op = "tracegraph.DecisionFromNode"
	if !n.IsDecision() {
		return Decision{}, Validation(op, "node %q is not a Decision (labels=%v)", n.ID, n.Labels)
	}
	d := Decision{
		ID:           n.ID,
		Labels:       append([]string(nil), n.Labels...),
		DecisionType: StringProp(n.Properties, "decision_type"),
		Category:     StringProp(n.Properties, "category"),
		Status:       StringProp(n.Properties, "status"),
		Reasoning:    StringProp(n.Properties, "reasoning"),
		RiskFactors:  stringSet(n.Properties["risk_factors"]),
	}
	if raw, ok := n.Properties["confidence"]; ok && raw != nil {
		c, ok := toFloat(raw)
		if !ok {
			return Decision{}, Validation(op, "decision %q confidence is not numeric: %v", n.ID, raw)
		}
		if math.IsNaN(c) || c < 0 || c > 1 {
			return Decision{}, Validation(op, "decision %q confidence %v outside [0,1]", n.ID, c)
		}
		d.Confidence = &c
	}
	if ts, ok := timeProp(n.Properties["timestamp"]); ok {
		d.Timestamp = &ts
	}
	if v, ok := FloatSlice(n.Properties[PropSemanticEmbedding]); ok {
		d.SemanticEmbedding = v
	}
	if v, ok := FloatSlice(n.Properties[PropStructuralEmbedding]); ok {
		d.StructuralEmbedding = v
	}
	extra := map[string]any{}
	for k, v := range n.Properties {
		if decisionFields[k] || IsEmbeddingProperty(k) {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		d.Properties = extra
	}
	return d, nil
}

// Embedding returns the decision's vector for a similarity space.
func (d Decision) Embedding(space Space) []float64 {
	switch space {
	case SpaceSemantic:
		return d.SemanticEmbedding
	case SpaceStructural:
		return d.StructuralEmbedding
	default:
		return nil
	}
}

func StringProp(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// FloatSlice accepts the list shapes produced by the Neo4j driver, JSON decoding and Go callers.
func FloatSlice(v any) ([]float64, bool) {
	switch t := v.(type) {
	case []float64:
		return append([]float64(nil), t...), len(t) > 0
	case []float32:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return out, len(out) > 0
	case []any:
		out := make([]float64, 0, len(t))
		for _, item := range t {
			f, ok := toFloat(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func timeProp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case interface{ Time() time.Time }:
		return t.Time(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func stringSet(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		if strings.TrimSpace(t) != "" {
			raw = []string{t}
		}
	}
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
