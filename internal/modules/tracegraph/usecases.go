package tracegraph

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph/steps"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

const tracerName = "github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph"

// SchemaCache stores the aggregated schema view between requests.
type SchemaCache interface {
	Get(ctx context.Context) (domain.GraphView, bool, error)
	Set(ctx context.Context, view domain.GraphView) error
}

// Metrics extends the core recorder with cache observations. A nil Metrics is valid.
type Metrics interface {
	steps.Recorder
	IncSchemaCache(hit bool)
}

type UsecasesDeps struct {
	Log *logger.Logger

	Graph      steps.GraphStore
	Schema     steps.SchemaSource
	Similarity steps.SimilarityProvider
	// Optional.
	SchemaCache SchemaCache
	Metrics     Metrics

	Limits           steps.Limits
	OperationTimeout time.Duration
}

type Usecases struct {
	deps         UsecasesDeps
	schemaFlight *singleflight.Group
}

func New(deps UsecasesDeps) Usecases {
	return Usecases{deps: deps, schemaFlight: &singleflight.Group{}}
}

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

type (
	FindPrecedentsInput    = steps.FindPrecedentsInput
	TraceCausalChainInput  = steps.TraceCausalChainInput
	ExpandNodeInput        = steps.ExpandNodeInput
	ExploreFromInput       = steps.ExploreFromInput
	CustomerDecisionsInput = steps.CustomerDecisionsInput
	SearchCustomersInput   = steps.SearchCustomersInput
	ListPoliciesInput      = steps.ListPoliciesInput
)

func (u Usecases) FindPrecedents(ctx context.Context, in FindPrecedentsInput) (domain.PrecedentSet, error) {
	return runOp(u, ctx, "tracegraph.FindPrecedents", []attribute.KeyValue{
		attribute.String("decision.id", in.DecisionID),
		attribute.Int("k", in.K),
		attribute.String("mode", string(in.Mode)),
		attribute.String("category", in.Category),
	}, func(ctx context.Context) (domain.PrecedentSet, error) {
		return steps.FindPrecedents(ctx, steps.FindPrecedentsDeps{
			Log:        u.log("HybridPrecedentRanker"),
			Graph:      u.deps.Graph,
			Similarity: u.deps.Similarity,
			Metrics:    u.recorder(),
			Limits:     u.deps.Limits,
		}, in)
	})
}

func (u Usecases) TraceCausalChain(ctx context.Context, in TraceCausalChainInput) (domain.CausalChain, error) {
	return runOp(u, ctx, "tracegraph.TraceCausalChain", []attribute.KeyValue{
		attribute.String("decision.id", in.DecisionID),
		attribute.Int("max_depth", in.MaxDepth),
		attribute.String("direction", string(in.Direction)),
	}, func(ctx context.Context) (domain.CausalChain, error) {
		return steps.TraceCausalChain(ctx, steps.TraceCausalChainDeps{
			Log:    u.log("CausalChainTracer"),
			Graph:  u.deps.Graph,
			Limits: u.deps.Limits,
		}, in)
	})
}

func (u Usecases) ExpandNode(ctx context.Context, in ExpandNodeInput) (domain.GraphView, error) {
	return runOp(u, ctx, "tracegraph.ExpandNode", []attribute.KeyValue{
		attribute.String("node.id", in.NodeID),
		attribute.Int("view.nodes", len(in.View.Nodes)),
	}, func(ctx context.Context) (domain.GraphView, error) {
		return steps.ExpandNode(ctx, u.expandDeps(), in)
	})
}

func (u Usecases) ExploreFrom(ctx context.Context, in ExploreFromInput) (domain.GraphView, error) {
	return runOp(u, ctx, "tracegraph.ExploreFrom", []attribute.KeyValue{
		attribute.String("node.id", in.NodeID),
		attribute.Int("depth", in.Depth),
		attribute.Int("limit", in.Limit),
	}, func(ctx context.Context) (domain.GraphView, error) {
		return steps.ExploreFrom(ctx, u.expandDeps(), in)
	})
}

func (u Usecases) GetDecision(ctx context.Context, id string) (domain.Decision, error) {
	return runOp(u, ctx, "tracegraph.GetDecision", []attribute.KeyValue{
		attribute.String("decision.id", id),
	}, func(ctx context.Context) (domain.Decision, error) {
		return steps.GetDecision(ctx, steps.GetDecisionDeps{Graph: u.deps.Graph, Limits: u.deps.Limits}, id)
	})
}

func (u Usecases) GetCustomerDecisions(ctx context.Context, in CustomerDecisionsInput) ([]domain.Decision, error) {
	return runOp(u, ctx, "tracegraph.GetCustomerDecisions", []attribute.KeyValue{
		attribute.String("decision_type", in.DecisionType),
		attribute.Int("limit", in.Limit),
	}, func(ctx context.Context) ([]domain.Decision, error) {
		return steps.GetCustomerDecisions(ctx, u.lookupDeps("CustomerLookup"), in)
	})
}

// SearchCustomers keeps the query text off the span; it may carry an email address.
func (u Usecases) SearchCustomers(ctx context.Context, in SearchCustomersInput) ([]domain.CustomerSummary, error) {
	return runOp(u, ctx, "tracegraph.SearchCustomers", []attribute.KeyValue{
		attribute.Int("limit", in.Limit),
	}, func(ctx context.Context) ([]domain.CustomerSummary, error) {
		return steps.SearchCustomers(ctx, u.lookupDeps("CustomerLookup"), in)
	})
}

func (u Usecases) ListPolicies(ctx context.Context, in ListPoliciesInput) ([]domain.Policy, error) {
	return runOp(u, ctx, "tracegraph.ListPolicies", []attribute.KeyValue{
		attribute.String("category", in.Category),
		attribute.Int("limit", in.Limit),
	}, func(ctx context.Context) ([]domain.Policy, error) {
		return steps.ListPolicies(ctx, u.lookupDeps("PolicyLookup"), in)
	})
}

// GetSchema serves from the cache when possible and collapses concurrent cold loads.
// Cache failures are logged and never fail the call.
func (u Usecases) GetSchema(ctx context.Context) (domain.GraphView, error) {
	return runOp(u, ctx, "tracegraph.GetSchema", nil, func(ctx context.Context) (domain.GraphView, error) {
		log := u.log("SchemaAggregator")
		if u.deps.SchemaCache != nil {
			view, ok, err := u.deps.SchemaCache.Get(ctx)
			switch {
			case err != nil:
				if log != nil {
					log.Warn("schema cache read failed", "error", err)
				}
			case ok:
				u.observeCache(true)
				return view, nil
			default:
				u.observeCache(false)
			}
		}

		// The load runs detached from any single caller, so one caller leaving does not
		// fail the others waiting on the same flight. Each caller still honors its own ctx.
		ch := u.schemaFlight.DoChan("schema", func() (interface{}, error) {
			loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.flightTimeout())
			defer cancel()
			view, err := steps.GetSchema(loadCtx, steps.GetSchemaDeps{
				Log:     log,
				Schema:  u.deps.Schema,
				Metrics: u.recorder(),
				Limits:  u.deps.Limits,
			})
			if err != nil {
				return nil, err
			}
			if u.deps.SchemaCache != nil {
				if setErr := u.deps.SchemaCache.Set(loadCtx, view); setErr != nil && log != nil {
					log.Warn("schema cache write failed", "error", setErr)
				}
			}
			return view, nil
		})
		select {
		case <-ctx.Done():
			return domain.GraphView{}, domain.FromContext("tracegraph.GetSchema", ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				return domain.GraphView{}, res.Err
			}
			view := res.Val.(domain.GraphView)
			if res.Shared {
				// Callers must not alias one another's slices.
				view = view.Clone()
			}
			return view, nil
		}
	})
}

// flightTimeout bounds a shared load that no caller deadline governs.
func (u Usecases) flightTimeout() time.Duration {
	if u.deps.OperationTimeout > 0 {
		return u.deps.OperationTimeout
	}
	if u.deps.Limits.DependencyTimeout > 0 {
		return 2 * u.deps.Limits.DependencyTimeout
	}
	return 2 * steps.DefaultLimits().DependencyTimeout
}

func (u Usecases) expandDeps() steps.ExpandNodeDeps {
	return steps.ExpandNodeDeps{
		Log:     u.log("GraphExpansionEngine"),
		Graph:   u.deps.Graph,
		Metrics: u.recorder(),
		Limits:  u.deps.Limits,
	}
}

func (u Usecases) lookupDeps(service string) steps.LookupDeps {
	return steps.LookupDeps{Log: u.log(service), Graph: u.deps.Graph, Limits: u.deps.Limits}
}

func (u Usecases) log(service string) *logger.Logger {
	if u.deps.Log == nil {
		return nil
	}
	return u.deps.Log.With("service", service)
}

func (u Usecases) recorder() steps.Recorder {
	if u.deps.Metrics == nil {
		return nil
	}
	return u.deps.Metrics
}

func (u Usecases) observeCache(hit bool) {
	if u.deps.Metrics != nil {
		u.deps.Metrics.IncSchemaCache(hit)
	}
}

// runOp applies the per-operation deadline and wraps the call in a span.
func runOp[T any](u Usecases, ctx context.Context, name string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if u.deps.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.deps.OperationTimeout)
		defer cancel()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}

	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.CodeOf(err)))
		span.SetAttributes(attribute.String("error.code", string(domain.CodeOf(err))))
	}
	return out, err
}
