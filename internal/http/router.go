package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/decisiontrace-backend/internal/http/handlers"
	httpMW "github.com/yungbote/decisiontrace-backend/internal/http/middleware"
	"github.com/yungbote/decisiontrace-backend/internal/observability"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	DecisionHandler *httpH.DecisionHandler
	GraphHandler    *httpH.GraphHandler
	CustomerHandler *httpH.CustomerHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "decisiontrace"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Decisions
		if cfg.DecisionHandler != nil {
			api.GET("/decisions/:id", cfg.DecisionHandler.GetDecision)
			api.GET("/decisions/:id/causal-chain", cfg.DecisionHandler.GetCausalChain)
			api.GET("/decisions/:id/precedents", cfg.DecisionHandler.GetPrecedents)
		}

		// Customers and policies
		if cfg.CustomerHandler != nil {
			api.GET("/customers", cfg.CustomerHandler.Search)
			api.GET("/customers/:id/decisions", cfg.CustomerHandler.Decisions)
			api.GET("/policies", cfg.CustomerHandler.Policies)
		}

		// Graph exploration
		if cfg.GraphHandler != nil {
			api.POST("/graph/expand", cfg.GraphHandler.Expand)
			api.GET("/graph/nodes/:id/explore", cfg.GraphHandler.Explore)
			api.GET("/graph/schema", cfg.GraphHandler.Schema)
		}
	}

	return r
}
