package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/decisiontrace-backend/internal/data/db"
	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
	"github.com/yungbote/decisiontrace-backend/internal/platform/neo4jdb"
	"github.com/yungbote/decisiontrace-backend/internal/platform/redisdb"
)

// Clients holds the connections the configured backends actually need. Any field may be nil.
type Clients struct {
	Neo4j    *neo4jdb.Client
	Redis    *goredis.Client
	Postgres *db.PostgresService
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if cfg.needsNeo4j() {
		client, err := neo4jdb.New(ctx, log, cfg.Neo4j)
		if err != nil {
			return Clients{}, fmt.Errorf("init neo4j: %w", err)
		}
		if client == nil {
			return Clients{}, fmt.Errorf("init neo4j: NEO4J_URI not set")
		}
		out.Neo4j = client
	}

	if cfg.needsPostgres() {
		pg, err := db.NewPostgresService(ctx, log, cfg.Postgres)
		if err != nil {
			out.Close(ctx)
			return Clients{}, fmt.Errorf("init postgres: %w", err)
		}
		out.Postgres = pg
	}

	rdb, err := redisdb.New(ctx, log, cfg.Redis)
	if err != nil {
		// The schema cache is optional; run without it.
		log.Warn("Redis unavailable; schema cache disabled", "error", err)
	} else {
		out.Redis = rdb
	}

	return out, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Postgres != nil {
		_ = c.Postgres.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
}

func (c Config) needsNeo4j() bool {
	if c.Graph.Backend == GraphBackendNeo4j {
		return true
	}
	return c.providerFor(domain.SpaceSemantic) == SimilarityProviderNeo4j ||
		c.providerFor(domain.SpaceStructural) == SimilarityProviderNeo4j
}

func (c Config) needsPostgres() bool {
	return c.providerFor(domain.SpaceSemantic) == SimilarityProviderPgvector ||
		c.providerFor(domain.SpaceStructural) == SimilarityProviderPgvector
}
