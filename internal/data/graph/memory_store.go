package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

// MemoryStore is an in-process graph backend loaded from a GraphView-shaped snapshot.
// It serves GraphStore, SchemaSource and (through MemorySimilarity) SimilarityProvider.
// Relationships whose endpoints are missing are kept as-is so callers see the same
// inconsistent data a real store could return.
type MemoryStore struct {
	mu       sync.RWMutex
	nodes    map[string]tracegraph.Node
	rels     map[string]tracegraph.Relationship
	outgoing map[string][]string
	incoming map[string][]string
}

func NewMemoryStore(seed tracegraph.GraphView) *MemoryStore {
	s := &MemoryStore{
		nodes:    map[string]tracegraph.Node{},
		rels:     map[string]tracegraph.Relationship{},
		outgoing: map[string][]string{},
		incoming: map[string][]string{},
	}
	for _, n := range seed.Nodes {
		s.AddNode(n)
	}
	for _, r := range seed.Relationships {
		s.AddRelationship(r)
	}
	return s
}

// LoadSnapshot reads a JSON file in GraphView wire shape.
func LoadSnapshot(path string) (*MemoryStore, error) {
	view, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(view), nil
}

func readSnapshot(path string) (tracegraph.GraphView, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return tracegraph.GraphView{}, fmt.Errorf("memory graph snapshot path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return tracegraph.GraphView{}, fmt.Errorf("read graph snapshot: %w", err)
	}
	var view tracegraph.GraphView
	if err := json.Unmarshal(raw, &view); err != nil {
		return tracegraph.GraphView{}, fmt.Errorf("decode graph snapshot %s: %w", path, err)
	}
	return view, nil
}

// Replace swaps the whole graph for view. Readers see either the old or the new graph.
func (s *MemoryStore) Replace(view tracegraph.GraphView) {
	next := NewMemoryStore(view)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = next.nodes
	s.rels = next.rels
	s.outgoing = next.outgoing
	s.incoming = next.incoming
}

func (s *MemoryStore) AddNode(n tracegraph.Node) {
	if strings.TrimSpace(n.ID) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n.Clone()
}

func (s *MemoryStore) AddRelationship(r tracegraph.Relationship) {
	if strings.TrimSpace(r.ID) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rels[r.ID]; !exists {
		s.outgoing[r.StartNodeID] = append(s.outgoing[r.StartNodeID], r.ID)
		s.incoming[r.EndNodeID] = append(s.incoming[r.EndNodeID], r.ID)
	}
	s.rels[r.ID] = r
}

func (s *MemoryStore) GetNode(ctx context.Context, id string) (tracegraph.Node, error) {
	if err := ctx.Err(); err != nil {
		return tracegraph.Node{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return tracegraph.Node{}, tracegraph.NotFound("graph.MemoryStore.GetNode", "node", id)
	}
	return publicNode(n), nil
}

func (s *MemoryStore) GetNeighbors(ctx context.Context, id string) (tracegraph.Neighborhood, error) {
	if err := ctx.Err(); err != nil {
		return tracegraph.Neighborhood{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return tracegraph.Neighborhood{}, tracegraph.NotFound("graph.MemoryStore.GetNeighbors", "node", id)
	}
	relIDs := append(append([]string(nil), s.outgoing[id]...), s.incoming[id]...)
	return s.neighborhoodLocked(id, relIDs, nil), nil
}

func (s *MemoryStore) GetCausalNeighbors(ctx context.Context, id string, incoming bool, relTypes []string) (tracegraph.Neighborhood, error) {
	if err := ctx.Err(); err != nil {
		return tracegraph.Neighborhood{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return tracegraph.Neighborhood{}, tracegraph.NotFound("graph.MemoryStore.GetCausalNeighbors", "node", id)
	}
	relIDs := s.outgoing[id]
	if incoming {
		relIDs = s.incoming[id]
	}
	allowed := map[string]bool{}
	for _, t := range relTypes {
		allowed[t] = true
	}
	return s.neighborhoodLocked(id, relIDs, allowed), nil
}

func (s *MemoryStore) neighborhoodLocked(id string, relIDs []string, allowedTypes map[string]bool) tracegraph.Neighborhood {
	out := tracegraph.Neighborhood{}
	seenRel := map[string]bool{}
	seenNode := map[string]bool{id: true}
	relIDs = append([]string(nil), relIDs...)
	sort.Strings(relIDs)
	for _, rid := range relIDs {
		if seenRel[rid] {
			continue
		}
		seenRel[rid] = true
		r := s.rels[rid]
		if allowedTypes != nil && !allowedTypes[r.Type] {
			continue
		}
		out.Relationships = append(out.Relationships, r)
		other := r.EndNodeID
		if other == id {
			other = r.StartNodeID
		}
		if seenNode[other] {
			continue
		}
		if n, ok := s.nodes[other]; ok {
			seenNode[other] = true
			out.Nodes = append(out.Nodes, publicNode(n))
		}
	}
	return out
}

func (s *MemoryStore) GetRelationshipsAmong(ctx context.Context, ids []string, exclude map[string]bool) ([]tracegraph.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracegraph.Relationship
	for _, id := range ids {
		for _, rid := range s.outgoing[id] {
			if exclude[rid] {
				continue
			}
			r := s.rels[rid]
			if set[r.EndNodeID] {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindNodes scans every node in id order. Limit <= 0 returns all matches.
func (s *MemoryStore) FindNodes(ctx context.Context, q tracegraph.NodeQuery) ([]tracegraph.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracegraph.Node
	for _, n := range s.nodes {
		if q.Matches(n) {
			out = append(out, publicNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) LabelCounts(ctx context.Context) ([]tracegraph.LabelCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int64{}
	for _, n := range s.nodes {
		for _, l := range n.Labels {
			counts[l]++
		}
	}
	out := make([]tracegraph.LabelCount, 0, len(counts))
	for l, c := range counts {
		out = append(out, tracegraph.LabelCount{Label: l, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// RelationshipPatterns groups by type and the primary labels of both endpoints. An
// endpoint missing from the store reports an empty label.
func (s *MemoryStore) RelationshipPatterns(ctx context.Context) ([]tracegraph.RelationshipPattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	type key struct{ t, a, b string }
	counts := map[key]int64{}
	for _, r := range s.rels {
		k := key{t: r.Type, a: s.nodes[r.StartNodeID].PrimaryLabel(), b: s.nodes[r.EndNodeID].PrimaryLabel()}
		counts[k]++
	}
	out := make([]tracegraph.RelationshipPattern, 0, len(counts))
	for k, c := range counts {
		out = append(out, tracegraph.RelationshipPattern{Type: k.t, StartLabel: k.a, EndLabel: k.b, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if out[i].StartLabel != out[j].StartLabel {
			return out[i].StartLabel < out[j].StartLabel
		}
		return out[i].EndLabel < out[j].EndLabel
	})
	return out, nil
}

// decisionsWithEmbedding returns every Decision carrying a vector for prop, keyed by id.
func (s *MemoryStore) decisionsWithEmbedding(prop string) map[string][]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string][]float64{}
	for id, n := range s.nodes {
		if !n.IsDecision() {
			continue
		}
		if v, ok := tracegraph.FloatSlice(n.Properties[prop]); ok {
			out[id] = v
		}
	}
	return out
}

func (s *MemoryStore) rawNode(id string) (tracegraph.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

func publicNode(n tracegraph.Node) tracegraph.Node {
	out := n.Clone()
	if out.Properties != nil {
		out.Properties = tracegraph.PublicProperties(out.Properties)
	}
	return out
}
