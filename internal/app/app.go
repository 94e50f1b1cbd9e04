package app

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/decisiontrace-backend/internal/data/cache"
	"github.com/yungbote/decisiontrace-backend/internal/data/graph"
	httpserver "github.com/yungbote/decisiontrace-backend/internal/http"
	httpH "github.com/yungbote/decisiontrace-backend/internal/http/handlers"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph/steps"
	"github.com/yungbote/decisiontrace-backend/internal/observability"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	Clients Clients
	Metrics *observability.Metrics
	Trace   tracegraph.Usecases
	Server  *httpserver.Server

	memory       *graph.MemoryStore
	schemaCache  schemaInvalidator
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

const schemaInvalidateTimeout = 2 * time.Second

type schemaInvalidator interface {
	Invalidate(ctx context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := NewWithConfig(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

// NewWithConfig wires every component from an already loaded config.
func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	log.Info("Wiring decision trace service...", "graph_backend", cfg.Graph.Backend)

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.New()
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, err
	}

	a := &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}

	trace, err := a.wireTrace(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Trace = trace

	a.Server = httpserver.NewServer(cfg.HTTP, httpserver.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.Otel.ServiceName,
		DecisionHandler: httpH.NewDecisionHandler(trace),
		GraphHandler:    httpH.NewGraphHandler(trace),
		CustomerHandler: httpH.NewCustomerHandler(trace),
		HealthHandler:   httpH.NewHealthHandler(a.readinessChecks()),
	})
	return a, nil
}

func (a *App) wireTrace(ctx context.Context) (tracegraph.Usecases, error) {
	var (
		store  steps.GraphStore
		schema steps.SchemaSource
		memory *graph.MemoryStore
	)
	switch a.Cfg.Graph.Backend {
	case GraphBackendMemory:
		m, err := graph.LoadSnapshot(a.Cfg.Graph.SnapshotPath)
		if err != nil {
			return tracegraph.Usecases{}, fmt.Errorf("load graph snapshot: %w", err)
		}
		a.Log.Info("Loaded graph snapshot", "path", a.Cfg.Graph.SnapshotPath)
		store, schema, memory = m, m, m
		a.memory = m
	default:
		s, err := graph.NewNeo4jStore(a.Clients.Neo4j, a.Log, a.Cfg.Graph.NeighborLimit)
		if err != nil {
			return tracegraph.Usecases{}, fmt.Errorf("init neo4j graph store: %w", err)
		}
		store, schema = s, s
	}

	deps := similarityDeps{Log: a.Log, Cfg: a.Cfg, Clients: a.Clients, Memory: memory}
	if a.Metrics != nil {
		deps.Metrics = a.Metrics
	}
	router, err := resolveSimilarity(ctx, deps)
	if err != nil {
		return tracegraph.Usecases{}, err
	}

	ucDeps := tracegraph.UsecasesDeps{
		Log:              a.Log,
		Graph:            store,
		Schema:           schema,
		Similarity:       router,
		Limits:           a.Cfg.Limits.Steps(),
		OperationTimeout: a.Cfg.Limits.OperationTimeout,
	}
	if a.Metrics != nil {
		ucDeps.Metrics = a.Metrics
	}
	if sc := cache.NewSchemaCache(a.Clients.Redis, a.Cfg.Redis.KeyPrefix, a.Cfg.Redis.SchemaTTL); sc != nil {
		ucDeps.SchemaCache = sc
		a.schemaCache = sc
	}
	return tracegraph.New(ucDeps), nil
}

func (a *App) readinessChecks() map[string]httpH.Pinger {
	checks := map[string]httpH.Pinger{}
	if c := a.Clients.Neo4j; c != nil {
		checks["neo4j"] = func(ctx context.Context) error { return c.Driver.VerifyConnectivity(ctx) }
	}
	if rdb := a.Clients.Redis; rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if pg := a.Clients.Postgres; pg != nil {
		checks["postgres"] = func(ctx context.Context) error {
			sqlDB, err := pg.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return checks
}

// Start launches the snapshot watcher and pool collectors. Safe to call once.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.memory != nil && a.Cfg.Graph.WatchSnapshot {
		w, err := graph.NewSnapshotWatcher(a.memory, a.Cfg.Graph.SnapshotPath, a.Log, a.invalidateSchema)
		if err != nil {
			a.Log.Warn("Graph snapshot watch disabled", "error", err)
		} else {
			w.Start(ctx)
		}
	}

	if a.Metrics == nil {
		return
	}
	if a.Clients.Postgres != nil {
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.Clients.Postgres.DB(), a.Cfg.Metrics.ScrapeInterval)
	}
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis, a.Cfg.Metrics.ScrapeInterval)
	}
}

// invalidateSchema drops the cached schema once a snapshot reload replaces the graph.
func (a *App) invalidateSchema() {
	if a.schemaCache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), schemaInvalidateTimeout)
	defer cancel()
	if err := a.schemaCache.Invalidate(ctx); err != nil {
		a.Log.Warn("Schema cache invalidation failed", "error", err)
		return
	}
	a.Log.Debug("Schema cache invalidated after snapshot reload")
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Start()
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)
	return a.Server.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	ctx := context.Background()
	a.Clients.Close(ctx)
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
