package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/decisiontrace-backend/internal/data/db"
	"github.com/yungbote/decisiontrace-backend/internal/data/graph"
	"github.com/yungbote/decisiontrace-backend/internal/data/similarity"
	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	httpserver "github.com/yungbote/decisiontrace-backend/internal/http"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph/steps"
	"github.com/yungbote/decisiontrace-backend/internal/observability"
	"github.com/yungbote/decisiontrace-backend/internal/platform/envutil"
	"github.com/yungbote/decisiontrace-backend/internal/platform/neo4jdb"
	"github.com/yungbote/decisiontrace-backend/internal/platform/qdrant"
	"github.com/yungbote/decisiontrace-backend/internal/platform/redisdb"
)

const defaultConfigPath = "config/decisiontrace.yaml"

type GraphBackend string

const (
	GraphBackendNeo4j  GraphBackend = "neo4j"
	GraphBackendMemory GraphBackend = "memory"
)

type GraphConfig struct {
	Backend       GraphBackend `yaml:"backend"`
	SnapshotPath  string       `yaml:"snapshot_path"`
	WatchSnapshot bool         `yaml:"watch_snapshot"`
	NeighborLimit int          `yaml:"neighbor_limit"`
}

// SpaceConfig selects where one similarity space is answered from. An empty provider
// follows the graph backend.
type SpaceConfig struct {
	Provider SimilarityProvider     `yaml:"provider"`
	Neo4j    graph.Neo4jSpaceConfig `yaml:"neo4j"`
}

type SimilarityConfig struct {
	Semantic       SpaceConfig                `yaml:"semantic"`
	Structural     SpaceConfig                `yaml:"structural"`
	PgvectorTable  string                     `yaml:"pgvector_table"`
	CircuitBreaker similarity.BreakerSettings `yaml:"circuit_breaker"`
}

type LimitsConfig struct {
	OperationTimeout     time.Duration `yaml:"operation_timeout"`
	DependencyTimeout    time.Duration `yaml:"dependency_timeout"`
	MaxDepth             int           `yaml:"max_depth"`
	MaxK                 int           `yaml:"max_k"`
	HybridOverfetch      int           `yaml:"hybrid_overfetch"`
	ExpansionConcurrency int           `yaml:"expansion_concurrency"`
	MaxExploreNodes      int           `yaml:"max_explore_nodes"`
}

func (l LimitsConfig) Steps() steps.Limits {
	return steps.Limits{
		DependencyTimeout:    l.DependencyTimeout,
		MaxDepth:             l.MaxDepth,
		MaxK:                 l.MaxK,
		HybridOverfetch:      l.HybridOverfetch,
		ExpansionConcurrency: l.ExpansionConcurrency,
		MaxExploreNodes:      l.MaxExploreNodes,
	}
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ScrapeInterval time.Duration `yaml:"scrape_interval"`
}

type Config struct {
	LogMode    string                   `yaml:"log_mode"`
	HTTP       httpserver.ServerConfig  `yaml:"http"`
	Graph      GraphConfig              `yaml:"graph"`
	Neo4j      neo4jdb.Config           `yaml:"neo4j"`
	Similarity SimilarityConfig         `yaml:"similarity"`
	Qdrant     qdrant.Config            `yaml:"qdrant"`
	Postgres   db.Config                `yaml:"postgres"`
	Redis      redisdb.Config           `yaml:"redis"`
	Limits     LimitsConfig             `yaml:"limits"`
	Metrics    MetricsConfig            `yaml:"metrics"`
	Otel       observability.OtelConfig `yaml:"otel"`
}

func DefaultConfig() Config {
	l := steps.DefaultLimits()
	return Config{
		LogMode: "development",
		HTTP: httpserver.ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Graph: GraphConfig{Backend: GraphBackendNeo4j},
		Neo4j: neo4jdb.DefaultConfig(),
		Similarity: SimilarityConfig{
			PgvectorTable:  "decision_embeddings",
			CircuitBreaker: similarity.DefaultBreakerSettings(),
		},
		Qdrant:   qdrant.DefaultConfig(),
		Postgres: db.DefaultConfig(),
		Redis:    redisdb.DefaultConfig(),
		Limits: LimitsConfig{
			OperationTimeout:     30 * time.Second,
			DependencyTimeout:    l.DependencyTimeout,
			MaxDepth:             l.MaxDepth,
			MaxK:                 l.MaxK,
			HybridOverfetch:      l.HybridOverfetch,
			ExpansionConcurrency: l.ExpansionConcurrency,
			MaxExploreNodes:      l.MaxExploreNodes,
		},
		Metrics: MetricsConfig{Enabled: true, ScrapeInterval: 15 * time.Second},
		Otel:    observability.DefaultOtelConfig(),
	}
}

// LoadConfig layers defaults, the optional YAML file and environment overrides, then
// validates the result. A missing file at the default path is not an error.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	path := envutil.String("DECISIONTRACE_CONFIG_PATH", "")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	if err := loadYAML(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	cfg = cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) applyEnv() Config {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)

	c.HTTP.Addr = envutil.String("HTTP_ADDR", c.HTTP.Addr)
	if port := envutil.String("PORT", ""); port != "" {
		c.HTTP.Addr = ":" + port
	}
	c.HTTP.ShutdownTimeout = envutil.Duration("HTTP_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout)
	if origins := envutil.String("CORS_ORIGINS", ""); origins != "" {
		c.HTTP.CORSOrigins = strings.Split(origins, ",")
	}

	c.Graph.Backend = GraphBackend(strings.ToLower(envutil.String("GRAPH_BACKEND", string(c.Graph.Backend))))
	c.Graph.SnapshotPath = envutil.String("GRAPH_SNAPSHOT_PATH", c.Graph.SnapshotPath)
	c.Graph.WatchSnapshot = envutil.Bool("GRAPH_SNAPSHOT_WATCH", c.Graph.WatchSnapshot)
	c.Graph.NeighborLimit = envutil.Int("GRAPH_NEIGHBOR_LIMIT", c.Graph.NeighborLimit)

	c.Similarity.Semantic.Provider = SimilarityProvider(strings.ToLower(envutil.String("SIMILARITY_SEMANTIC_PROVIDER", string(c.Similarity.Semantic.Provider))))
	c.Similarity.Structural.Provider = SimilarityProvider(strings.ToLower(envutil.String("SIMILARITY_STRUCTURAL_PROVIDER", string(c.Similarity.Structural.Provider))))
	c.Similarity.Semantic.Neo4j.Strategy = envutil.String("SIMILARITY_SEMANTIC_STRATEGY", c.Similarity.Semantic.Neo4j.Strategy)
	c.Similarity.Structural.Neo4j.Strategy = envutil.String("SIMILARITY_STRUCTURAL_STRATEGY", c.Similarity.Structural.Neo4j.Strategy)
	c.Similarity.CircuitBreaker.Enabled = envutil.Bool("SIMILARITY_BREAKER_ENABLED", c.Similarity.CircuitBreaker.Enabled)

	c.Neo4j = c.Neo4j.ApplyEnv()
	c.Qdrant = c.Qdrant.ApplyEnv()
	c.Postgres = c.Postgres.ApplyEnv()
	c.Redis = c.Redis.ApplyEnv()
	c.Otel = c.Otel.ApplyEnv()

	c.Limits.OperationTimeout = envutil.Duration("OPERATION_TIMEOUT", c.Limits.OperationTimeout)
	c.Limits.DependencyTimeout = envutil.Duration("DEPENDENCY_TIMEOUT", c.Limits.DependencyTimeout)
	c.Limits.MaxDepth = envutil.Int("MAX_CAUSAL_DEPTH", c.Limits.MaxDepth)
	c.Limits.MaxK = envutil.Int("MAX_PRECEDENT_K", c.Limits.MaxK)
	c.Limits.HybridOverfetch = envutil.Int("HYBRID_OVERFETCH", c.Limits.HybridOverfetch)
	c.Limits.ExpansionConcurrency = envutil.Int("EXPANSION_CONCURRENCY", c.Limits.ExpansionConcurrency)
	c.Limits.MaxExploreNodes = envutil.Int("MAX_EXPLORE_NODES", c.Limits.MaxExploreNodes)

	c.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", c.Metrics.Enabled)
	return c
}

func (c Config) Validate() error {
	switch c.Graph.Backend {
	case GraphBackendNeo4j:
		if strings.TrimSpace(c.Neo4j.URI) == "" {
			return fmt.Errorf("graph backend neo4j requires NEO4J_URI")
		}
	case GraphBackendMemory:
		if strings.TrimSpace(c.Graph.SnapshotPath) == "" {
			return fmt.Errorf("graph backend memory requires GRAPH_SNAPSHOT_PATH")
		}
	default:
		return fmt.Errorf("unknown graph backend %q (want neo4j|memory)", c.Graph.Backend)
	}
	for _, space := range []domain.Space{domain.SpaceSemantic, domain.SpaceStructural} {
		if err := validateSpaceProvider(c.Graph.Backend, space, c.providerFor(space)); err != nil {
			return err
		}
	}
	if c.Limits.MaxDepth < 0 || c.Limits.MaxK < 0 || c.Limits.HybridOverfetch < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}
