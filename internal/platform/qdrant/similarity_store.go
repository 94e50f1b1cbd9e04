package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

const (
	payloadNamespaceKey = "_dt_namespace"
	payloadDecisionKey  = "_dt_decision_id"
)

var pointIDNamespaceUUID = uuid.MustParse("6f0c5b1e-8a43-4f1e-9f65-2d7d2b9c4a10")

// SimilarityStore answers top-k precedent lookups with the Qdrant recommend API. Each
// similarity space lives in its own payload namespace; points are keyed by a
// deterministic UUID of (namespace, decision id) so the seed never needs its vector sent.
type SimilarityStore struct {
	log      *logger.Logger
	cfg      Config
	rest     restClient
	nsPrefix string
	distance string
}

type qdrantScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewSimilarityStore(ctx context.Context, log *logger.Logger, cfg Config) (*SimilarityStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	nsPrefix := strings.TrimSpace(cfg.NamespacePrefix)
	if nsPrefix == "" {
		nsPrefix = DefaultConfig().NamespacePrefix
	}

	s := &SimilarityStore{
		log:      log.With("service", "QdrantSimilarityStore"),
		cfg:      cfg,
		rest:     restClient{base: strings.TrimRight(cfg.URL, "/"), hc: &http.Client{Timeout: timeout}},
		nsPrefix: nsPrefix,
	}
	if err := s.verifyReady(ctx); err != nil {
		return nil, err
	}

	log.Info(
		"Qdrant similarity store selected",
		"provider", "qdrant",
		"url", s.rest.base,
		"collection", cfg.Collection,
		"namespace_prefix", s.nsPrefix,
		"distance", s.distance,
	)
	return s, nil
}

func (s *SimilarityStore) TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error) {
	if s == nil {
		return nil, fmt.Errorf("qdrant similarity store unavailable")
	}
	const op = "recommend"
	seedID = strings.TrimSpace(seedID)
	if seedID == "" {
		return nil, opErr(op, OperationErrorValidation, "seed id required", nil)
	}
	if !space.Valid() {
		return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("unknown space %q", space), nil)
	}
	if k <= 0 {
		return []tracegraph.SimilarityResult{}, nil
	}

	ns := s.qualifyNamespace(string(space))
	req := map[string]any{
		"positive":     []string{s.pointID(ns, seedID)},
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
		"filter": map[string]any{
			"must": []any{matchCondition(payloadNamespaceKey, ns)},
		},
	}
	if vec := s.vectorName(space); vec != "" {
		req["using"] = vec
	}

	var raw []qdrantScoredPoint
	if err := s.rest.call(ctx, op, http.MethodPost, s.collectionPath("/points/recommend"), req, &raw); err != nil {
		return nil, err
	}

	out := make([]tracegraph.SimilarityResult, 0, len(raw))
	for _, item := range raw {
		id := extractDecisionID(item)
		if id == "" || id == seedID {
			continue
		}
		out = append(out, tracegraph.SimilarityResult{ItemID: id, Score: s.normalizeScore(item.Score), Space: space})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *SimilarityStore) vectorName(space tracegraph.Space) string {
	if space == tracegraph.SpaceStructural {
		return strings.TrimSpace(s.cfg.StructuralVector)
	}
	return strings.TrimSpace(s.cfg.SemanticVector)
}

// verifyReady checks /readyz, then reads the collection's distance for score normalization.
func (s *SimilarityStore) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	if err := s.rest.ready(ctx, op); err != nil {
		return err
	}
	var result struct {
		Config struct {
			Params struct {
				Vectors json.RawMessage `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.rest.call(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result); err != nil {
		return err
	}
	s.distance = collectionDistance(result.Config.Params.Vectors, s.cfg.SemanticVector)
	return nil
}

// collectionDistance reads the distance of the unnamed vector, or of the named one when set.
func collectionDistance(raw json.RawMessage, name string) string {
	if len(raw) == 0 {
		return ""
	}
	var single struct {
		Distance string `json:"distance"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.Distance != "" {
		return strings.TrimSpace(single.Distance)
	}
	var named map[string]struct {
		Distance string `json:"distance"`
	}
	if err := json.Unmarshal(raw, &named); err == nil {
		if v, ok := named[strings.TrimSpace(name)]; ok {
			return strings.TrimSpace(v.Distance)
		}
		for _, v := range named {
			return strings.TrimSpace(v.Distance)
		}
	}
	return ""
}

func matchCondition(key, value string) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func (s *SimilarityStore) qualifyNamespace(space string) string {
	return s.nsPrefix + ":" + strings.TrimSpace(space)
}

// PointID is exported for ingestion tooling that writes points this store reads.
func PointID(qualifiedNS, decisionID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(qualifiedNS+"|"+decisionID)).String()
}

func (s *SimilarityStore) pointID(qualifiedNS, decisionID string) string {
	return PointID(qualifiedNS, decisionID)
}

func (s *SimilarityStore) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func extractDecisionID(item qdrantScoredPoint) string {
	if payloadID, ok := item.Payload[payloadDecisionKey].(string); ok {
		if id := strings.TrimSpace(payloadID); id != "" {
			return id
		}
	}
	// Raw point ids are UUIDs of the namespaced key, never a decision id.
	return ""
}

func (s *SimilarityStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	case "cosine":
		// Map [-1,1] onto [0,1] like the Neo4j vector index does.
		return (1.0 + score) / 2.0
	default:
		return score
	}
}
