package tracegraph

import "sort"

// GraphView is a caller-held subgraph. Every relationship's endpoints are present in
// Nodes; relationships that would dangle are excluded and counted in DanglingExcluded.
type GraphView struct {
	Nodes            []Node         `json:"nodes"`
	Relationships    []Relationship `json:"relationships"`
	Expanded         []string       `json:"expanded,omitempty"`
	DanglingExcluded int            `json:"danglingExcluded,omitempty"`
}

func (v GraphView) NodeIDs() map[string]bool {
	out := make(map[string]bool, len(v.Nodes))
	for _, n := range v.Nodes {
		out[n.ID] = true
	}
	return out
}

func (v GraphView) RelationshipIDs() map[string]bool {
	out := make(map[string]bool, len(v.Relationships))
	for _, r := range v.Relationships {
		out[r.ID] = true
	}
	return out
}

func (v GraphView) HasNode(id string) bool {
	for _, n := range v.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (v GraphView) IsExpanded(id string) bool {
	for _, e := range v.Expanded {
		if e == id {
			return true
		}
	}
	return false
}

// SortedNodeIDs returns the visible node ids in ascending order.
func (v GraphView) SortedNodeIDs() []string {
	ids := make([]string, 0, len(v.Nodes))
	for _, n := range v.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

// Clone deep-copies the view so the result can be extended without aliasing the input.
func (v GraphView) Clone() GraphView {
	out := GraphView{
		Nodes:            make([]Node, 0, len(v.Nodes)),
		Relationships:    make([]Relationship, 0, len(v.Relationships)),
		DanglingExcluded: v.DanglingExcluded,
	}
	for _, n := range v.Nodes {
		out.Nodes = append(out.Nodes, n.Clone())
	}
	out.Relationships = append(out.Relationships, v.Relationships...)
	if len(v.Expanded) > 0 {
		out.Expanded = append([]string(nil), v.Expanded...)
	}
	return out
}

// Normalize dedupes nodes, relationships and expanded ids by id (first occurrence wins)
// and drops relationships whose endpoints are not visible. The returned count is the
// number of relationships dropped as dangling by this call.
func (v GraphView) Normalize() (GraphView, int) {
	out := GraphView{
		Nodes:            make([]Node, 0, len(v.Nodes)),
		Relationships:    make([]Relationship, 0, len(v.Relationships)),
		DanglingExcluded: v.DanglingExcluded,
	}
	seenNodes := make(map[string]bool, len(v.Nodes))
	for _, n := range v.Nodes {
		if n.ID == "" || seenNodes[n.ID] {
			continue
		}
		seenNodes[n.ID] = true
		out.Nodes = append(out.Nodes, n.Clone())
	}
	seenRels := make(map[string]bool, len(v.Relationships))
	dangling := 0
	for _, r := range v.Relationships {
		if r.ID == "" || seenRels[r.ID] {
			continue
		}
		seenRels[r.ID] = true
		if !seenNodes[r.StartNodeID] || !seenNodes[r.EndNodeID] {
			dangling++
			continue
		}
		out.Relationships = append(out.Relationships, r)
	}
	seenExpanded := make(map[string]bool, len(v.Expanded))
	for _, id := range v.Expanded {
		if id == "" || seenExpanded[id] {
			continue
		}
		seenExpanded[id] = true
		out.Expanded = append(out.Expanded, id)
	}
	out.DanglingExcluded += dangling
	return out, dangling
}
