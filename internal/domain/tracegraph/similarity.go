package tracegraph

import (
	"fmt"
	"strings"
)

// Space names an independently computed similarity space.
type Space string

const (
	SpaceSemantic   Space = "semantic"
	SpaceStructural Space = "structural"
)

func (s Space) Valid() bool { return s == SpaceSemantic || s == SpaceStructural }

func (s Space) EmbeddingProperty() string {
	if s == SpaceStructural {
		return PropStructuralEmbedding
	}
	return PropSemanticEmbedding
}

// Mode selects which similarity spaces a precedent search consults.
type Mode string

const (
	ModeSemantic   Mode = "semantic"
	ModeStructural Mode = "structural"
	ModeHybrid     Mode = "hybrid"
)

// ParseMode resolves a caller-supplied mode once at the boundary. Empty means hybrid.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeSemantic:
		return ModeSemantic, nil
	case ModeStructural:
		return ModeStructural, nil
	default:
		return "", Validation("tracegraph.ParseMode", "unknown mode %q (want semantic|structural|hybrid)", raw)
	}
}

// Spaces lists the similarity spaces consulted by the mode, in fixed order.
func (m Mode) Spaces() []Space {
	switch m {
	case ModeSemantic:
		return []Space{SpaceSemantic}
	case ModeStructural:
		return []Space{SpaceStructural}
	case ModeHybrid:
		return []Space{SpaceSemantic, SpaceStructural}
	default:
		return nil
	}
}

type SimilarityResult struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
	Space  Space   `json:"space"`
}

type PrecedentResult struct {
	DecisionID         string   `json:"decision_id"`
	CombinedScore      float64  `json:"combined_score"`
	ContributingSpaces []Space  `json:"contributing_spaces"`
	SemanticScore      *float64 `json:"semantic_score,omitempty"`
	StructuralScore    *float64 `json:"structural_score,omitempty"`
}

func (p PrecedentResult) DualSpace() bool { return len(p.ContributingSpaces) > 1 }

// PrecedentSet is a ranked precedent list. Degraded is set when a hybrid search
// fell back to a single space; FailedSpaces names the spaces that failed.
type PrecedentSet struct {
	SeedID       string            `json:"seed_id"`
	Mode         Mode              `json:"mode"`
	Results      []PrecedentResult `json:"results"`
	Degraded     bool              `json:"degraded"`
	FailedSpaces []Space           `json:"failed_spaces,omitempty"`
}

// Direction restricts a causal trace to one side of the seed.
type Direction string

const (
	DirectionBoth    Direction = "both"
	DirectionCauses  Direction = "causes"
	DirectionEffects Direction = "effects"
)

func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DirectionBoth:
		return DirectionBoth, nil
	case DirectionCauses:
		return DirectionCauses, nil
	case DirectionEffects:
		return DirectionEffects, nil
	default:
		return "", Validation("tracegraph.ParseDirection", "unknown direction %q (want both|causes|effects)", raw)
	}
}

func (d Direction) IncludesCauses() bool  { return d == DirectionBoth || d == DirectionCauses }
func (d Direction) IncludesEffects() bool { return d == DirectionBoth || d == DirectionEffects }

type ChainEntry struct {
	Decision Decision `json:"decision"`
	Depth    int      `json:"depth"`
}

func (c ChainEntry) String() string { return fmt.Sprintf("%s@%d", c.Decision.ID, c.Depth) }

type CausalChain struct {
	DecisionID string       `json:"decision_id"`
	MaxDepth   int          `json:"max_depth"`
	Direction  Direction    `json:"direction"`
	Causes     []ChainEntry `json:"causes"`
	Effects    []ChainEntry `json:"effects"`
}
