package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/data/graph"
	"github.com/yungbote/decisiontrace-backend/internal/data/similarity"
	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
	"github.com/yungbote/decisiontrace-backend/internal/platform/qdrant"
)

var (
	newQdrantSimilarity = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (similarity.Provider, error) {
		return qdrant.NewSimilarityStore(ctx, log, cfg)
	}
	newNeo4jSimilarity = func(deps similarityDeps, space domain.Space, cfg graph.Neo4jSpaceConfig) (similarity.Provider, error) {
		return graph.NewNeo4jSimilarity(deps.Clients.Neo4j, deps.Log, space, cfg)
	}
	newPgvectorSimilarity = func(deps similarityDeps, table string) (similarity.Provider, error) {
		if deps.Clients.Postgres == nil {
			return nil, fmt.Errorf("postgres client not initialized")
		}
		return similarity.NewPgvector(deps.Clients.Postgres.DB(), deps.Log, table)
	}
)

type SimilarityProvider string

const (
	SimilarityProviderNeo4j    SimilarityProvider = "neo4j"
	SimilarityProviderQdrant   SimilarityProvider = "qdrant"
	SimilarityProviderPgvector SimilarityProvider = "pgvector"
	SimilarityProviderMemory   SimilarityProvider = "memory"
)

type SimilarityBootstrapErrorCode string

const (
	SimilarityBootstrapErrorInvalidProvider   SimilarityBootstrapErrorCode = "invalid_provider"
	SimilarityBootstrapErrorMissingQdrantURL  SimilarityBootstrapErrorCode = "missing_qdrant_url"
	SimilarityBootstrapErrorInvalidQdrantURL  SimilarityBootstrapErrorCode = "invalid_qdrant_url"
	SimilarityBootstrapErrorMissingQdrantColl SimilarityBootstrapErrorCode = "missing_qdrant_collection"
	SimilarityBootstrapErrorQdrantConfig      SimilarityBootstrapErrorCode = "qdrant_config_failed"
	SimilarityBootstrapErrorConnectFailed     SimilarityBootstrapErrorCode = "connect_failed"
	SimilarityBootstrapErrorInitFailed        SimilarityBootstrapErrorCode = "provider_init_failed"
)

type SimilarityBootstrapError struct {
	Code     SimilarityBootstrapErrorCode
	Provider SimilarityProvider
	Space    domain.Space
	Cause    error
}

func (e *SimilarityBootstrapError) Error() string {
	if e == nil {
		return "similarity provider bootstrap failed"
	}
	return fmt.Sprintf(
		"similarity provider bootstrap failed (code=%s provider=%q space=%q): %v",
		e.Code,
		e.Provider,
		e.Space,
		e.Cause,
	)
}

func (e *SimilarityBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type similarityDeps struct {
	Log     *logger.Logger
	Cfg     Config
	Clients Clients
	// Memory is set only for the memory graph backend.
	Memory  *graph.MemoryStore
	Metrics similarity.DependencyObserver
}

func (c Config) providerFor(space domain.Space) SimilarityProvider {
	sc := c.Similarity.Semantic
	if space == domain.SpaceStructural {
		sc = c.Similarity.Structural
	}
	p := SimilarityProvider(strings.ToLower(strings.TrimSpace(string(sc.Provider))))
	if p != "" {
		return p
	}
	if c.Graph.Backend == GraphBackendMemory {
		return SimilarityProviderMemory
	}
	return SimilarityProviderNeo4j
}

func (c Config) neo4jSpaceConfig(space domain.Space) graph.Neo4jSpaceConfig {
	if space == domain.SpaceStructural {
		return c.Similarity.Structural.Neo4j
	}
	return c.Similarity.Semantic.Neo4j
}

func validateSpaceProvider(backend GraphBackend, space domain.Space, p SimilarityProvider) error {
	switch p {
	case SimilarityProviderNeo4j, SimilarityProviderQdrant, SimilarityProviderPgvector:
		return nil
	case SimilarityProviderMemory:
		if backend != GraphBackendMemory {
			return &SimilarityBootstrapError{
				Code:     SimilarityBootstrapErrorInvalidProvider,
				Provider: p,
				Space:    space,
				Cause:    fmt.Errorf("memory similarity requires the memory graph backend"),
			}
		}
		return nil
	default:
		return &SimilarityBootstrapError{
			Code:     SimilarityBootstrapErrorInvalidProvider,
			Provider: p,
			Space:    space,
			Cause:    fmt.Errorf("unsupported similarity provider %q", p),
		}
	}
}

// resolveSimilarity builds one provider per space and routes between them. Every provider
// is instrumented, then wrapped in a circuit breaker.
func resolveSimilarity(ctx context.Context, deps similarityDeps) (*similarity.Router, error) {
	log := deps.Log
	bySpace := map[domain.Space]similarity.Provider{}
	var qdrantStore similarity.Provider

	for _, space := range []domain.Space{domain.SpaceSemantic, domain.SpaceStructural} {
		provider := deps.Cfg.providerFor(space)
		if err := validateSpaceProvider(deps.Cfg.Graph.Backend, space, provider); err != nil {
			log.Error("Similarity provider selection failed", "provider", provider, "space", space, "error", err)
			return nil, err
		}
		log.Info("Selecting similarity provider", "provider", provider, "space", space)

		var (
			inner similarity.Provider
			err   error
		)
		switch provider {
		case SimilarityProviderQdrant:
			if qdrantStore == nil {
				qdrantStore, err = newQdrantSimilarity(ctx, log, deps.Cfg.Qdrant)
			}
			inner = qdrantStore
		case SimilarityProviderNeo4j:
			inner, err = newNeo4jSimilarity(deps, space, deps.Cfg.neo4jSpaceConfig(space))
		case SimilarityProviderPgvector:
			inner, err = newPgvectorSimilarity(deps, deps.Cfg.Similarity.PgvectorTable)
		case SimilarityProviderMemory:
			inner = graph.NewMemorySimilarity(deps.Memory)
		}
		if err != nil {
			classified := classifySimilarityBootstrapError(provider, space, err)
			log.Error(
				"Similarity provider bootstrap failed",
				"provider", provider,
				"space", space,
				"error_code", similarityBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, classified
		}

		p := similarity.Instrument(string(provider), inner, deps.Metrics)
		bySpace[space] = similarity.WithBreaker(string(provider)+"_"+string(space), p, deps.Cfg.Similarity.CircuitBreaker, log)
	}
	return similarity.NewRouter(bySpace), nil
}

func classifySimilarityBootstrapError(provider SimilarityProvider, space domain.Space, err error) error {
	wrap := func(code SimilarityBootstrapErrorCode) error {
		return &SimilarityBootstrapError{Code: code, Provider: provider, Space: space, Cause: err}
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			return wrap(SimilarityBootstrapErrorMissingQdrantURL)
		case qdrant.ConfigErrorInvalidURL:
			return wrap(SimilarityBootstrapErrorInvalidQdrantURL)
		case qdrant.ConfigErrorMissingCollection:
			return wrap(SimilarityBootstrapErrorMissingQdrantColl)
		default:
			return wrap(SimilarityBootstrapErrorQdrantConfig)
		}
	}

	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return wrap(SimilarityBootstrapErrorConnectFailed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(SimilarityBootstrapErrorConnectFailed)
	}
	if domain.IsCode(err, domain.CodeDependencyUnavailable) || domain.IsCode(err, domain.CodeDependencyTimeout) {
		return wrap(SimilarityBootstrapErrorConnectFailed)
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return wrap(SimilarityBootstrapErrorConnectFailed)
	}
	return wrap(SimilarityBootstrapErrorInitFailed)
}

func similarityBootstrapErrorCode(err error) SimilarityBootstrapErrorCode {
	var bootstrapErr *SimilarityBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return SimilarityBootstrapErrorInitFailed
}
