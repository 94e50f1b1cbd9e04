package tracegraph

import (
	"math"
	"strings"
)

// CustomerSummary is a Person node with the counts an analyst sees in a search result.
type CustomerSummary struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email,omitempty"`
	RiskScore     float64 `json:"risk_score"`
	AccountCount  int     `json:"account_count"`
	DecisionCount int     `json:"decision_count"`
}

// CustomerSummaryFromNode reads the profile fields; counts are filled by the caller.
// A missing or non-finite risk score reads as zero.
func CustomerSummaryFromNode(n Node) CustomerSummary {
	out := CustomerSummary{
		ID:    n.ID,
		Name:  StringProp(n.Properties, "name"),
		Email: StringProp(n.Properties, "email"),
	}
	if risk, ok := FloatProp(n.Properties, "risk_score"); ok {
		out.RiskScore = risk
	}
	return out
}

// Policy is the typed view of a node labelled Policy.
type Policy struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    string         `json:"category,omitempty"`
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

var policyFields = map[string]bool{"id": true, "name": true, "category": true, "description": true}

func PolicyFromNode(n Node) (Policy, error) {
	if !n.HasLabel(LabelPolicy) {
		return Policy{}, Validation("tracegraph.PolicyFromNode", "node %q is not a Policy (labels=%v)", n.ID, n.Labels)
	}
	p := Policy{
		ID:          n.ID,
		Name:        StringProp(n.Properties, "name"),
		Category:    StringProp(n.Properties, "category"),
		Description: StringProp(n.Properties, "description"),
	}
	extra := map[string]any{}
	for k, v := range n.Properties {
		if policyFields[k] || IsEmbeddingProperty(k) {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		p.Properties = extra
	}
	return p, nil
}

// NodeQuery selects nodes of one label. Equals compares string forms ignoring case;
// Text matches a case-insensitive substring of any TextFields property ("id" included).
type NodeQuery struct {
	Label      string
	Equals     map[string]string
	Text       string
	TextFields []string
	Limit      int
}

// Matches applies the query to n in memory. Limit is not considered.
func (q NodeQuery) Matches(n Node) bool {
	if q.Label != "" && !n.HasLabel(q.Label) {
		return false
	}
	for k, want := range q.Equals {
		if !strings.EqualFold(StringProp(n.Properties, k), want) {
			return false
		}
	}
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return true
	}
	for _, f := range q.TextFields {
		v := StringProp(n.Properties, f)
		if f == "id" {
			v = n.ID
		}
		if strings.Contains(strings.ToLower(v), text) {
			return true
		}
	}
	return false
}

// FloatProp reads a numeric property, rejecting NaN and infinities.
func FloatProp(props map[string]any, key string) (float64, bool) {
	v, ok := props[key]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
