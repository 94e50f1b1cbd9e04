package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
	"github.com/yungbote/decisiontrace-backend/internal/platform/neo4jdb"
)

const (
	StrategyVectorIndex = "vector_index"
	StrategyGDSCosine   = "gds_cosine"
)

// Neo4jSpaceConfig names where one similarity space lives inside Neo4j.
type Neo4jSpaceConfig struct {
	Strategy string `yaml:"strategy"`
	Index    string `yaml:"index"`
	Property string `yaml:"property"`
}

// Neo4jSimilarity answers TopK from embeddings stored on Decision nodes, either through a
// native vector index or by brute-force gds.similarity.cosine. Both report scores in [0,1].
type Neo4jSimilarity struct {
	client *neo4jdb.Client
	log    *logger.Logger
	space  tracegraph.Space
	cfg    Neo4jSpaceConfig
}

func NewNeo4jSimilarity(client *neo4jdb.Client, log *logger.Logger, space tracegraph.Space, cfg Neo4jSpaceConfig) (*Neo4jSimilarity, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	if !space.Valid() {
		return nil, fmt.Errorf("graph: unknown similarity space %q", space)
	}
	cfg.Strategy = strings.ToLower(strings.TrimSpace(cfg.Strategy))
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyVectorIndex
	}
	if strings.TrimSpace(cfg.Property) == "" {
		cfg.Property = space.EmbeddingProperty()
	}
	switch cfg.Strategy {
	case StrategyVectorIndex:
		if strings.TrimSpace(cfg.Index) == "" {
			cfg.Index = "decision_" + string(space) + "_embedding"
		}
	case StrategyGDSCosine:
	default:
		return nil, fmt.Errorf("graph: unknown neo4j similarity strategy %q", cfg.Strategy)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Neo4jSimilarity{
		client: client,
		log:    log.With("provider", "Neo4jSimilarity", "space", string(space)),
		space:  space,
		cfg:    cfg,
	}, nil
}

var (
	seedDecisionMatch = `MATCH (seed:Decision) WHERE seed.id = $id OR elementId(seed) = $id
WITH seed LIMIT 1
WITH seed WHERE seed[$prop] IS NOT NULL
`
	vectorIndexQuery = seedDecisionMatch + fmt.Sprintf(`CALL db.index.vector.queryNodes($index, $fetch, seed[$prop]) YIELD node, score
WITH seed, node, score WHERE node <> seed AND node:Decision
RETURN %s AS item_id, score
ORDER BY score DESC, item_id ASC
LIMIT $k`, idExpr("node"))

	gdsCosineQuery = seedDecisionMatch + fmt.Sprintf(`MATCH (other:Decision) WHERE other <> seed AND other[$prop] IS NOT NULL
WITH other, (1.0 + gds.similarity.cosine(seed[$prop], other[$prop])) / 2.0 AS score
RETURN %s AS item_id, score
ORDER BY score DESC, item_id ASC
LIMIT $k`, idExpr("other"))
)

func (n *Neo4jSimilarity) query() string {
	if n.cfg.Strategy == StrategyGDSCosine {
		return gdsCosineQuery
	}
	return vectorIndexQuery
}

func (n *Neo4jSimilarity) TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error) {
	const op = "graph.Neo4jSimilarity.TopK"
	if space != n.space {
		return nil, tracegraph.Validation(op, "provider serves %s, asked for %s", n.space, space)
	}
	if k <= 0 {
		return []tracegraph.SimilarityResult{}, nil
	}
	rows, err := readRows(ctx, n.client, n.query(), map[string]any{
		"id":    seedID,
		"prop":  n.cfg.Property,
		"index": n.cfg.Index,
		// The index returns the seed itself as its own nearest neighbor.
		"fetch": k + 1,
		"k":     k,
	})
	if err != nil {
		return nil, fmt.Errorf("%s (%s): %w", op, n.cfg.Strategy, err)
	}
	out := make([]tracegraph.SimilarityResult, 0, len(rows))
	for _, rec := range rows {
		id := recString(rec, "item_id")
		if id == "" || id == seedID {
			continue
		}
		out = append(out, tracegraph.SimilarityResult{ItemID: id, Score: recFloat(rec, "score"), Space: space})
	}
	return out, nil
}
