package http

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/decisiontrace-backend/internal/data/graph"
	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	httpH "github.com/yungbote/decisiontrace-backend/internal/http/handlers"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph/steps"
	"github.com/yungbote/decisiontrace-backend/internal/observability"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	vec := func(x, y float64) []any { return []any{x, y} }
	store := graph.NewMemoryStore(domain.GraphView{
		Nodes: []domain.Node{
			{ID: "d1", Labels: []string{domain.LabelDecision}, Properties: map[string]any{
				"status": "approved", "confidence": 0.9,
				domain.PropSemanticEmbedding: vec(1, 0), domain.PropStructuralEmbedding: vec(1, 0),
			}},
			{ID: "d2", Labels: []string{domain.LabelDecision}, Properties: map[string]any{
				domain.PropSemanticEmbedding: vec(1, 0.1), domain.PropStructuralEmbedding: vec(0, 1),
			}},
			{ID: "p1", Labels: []string{domain.LabelPerson}},
		},
		Relationships: []domain.Relationship{
			{ID: "r1", Type: domain.RelCaused, StartNodeID: "d1", EndNodeID: "d2"},
			{ID: "r2", Type: domain.RelAbout, StartNodeID: "d1", EndNodeID: "p1"},
		},
	})
	uc := tracegraph.New(tracegraph.UsecasesDeps{
		Log:        logger.Nop(),
		Graph:      store,
		Schema:     store,
		Similarity: graph.NewMemorySimilarity(store),
		Limits:     steps.DefaultLimits(),
	})
	return NewRouter(RouterConfig{
		Log:             logger.Nop(),
		Metrics:         observability.New(),
		DecisionHandler: httpH.NewDecisionHandler(uc),
		GraphHandler:    httpH.NewGraphHandler(uc),
		CustomerHandler: httpH.NewCustomerHandler(uc),
		HealthHandler:   httpH.NewHealthHandler(nil),
	})
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, out
}

func TestDecisionRoutes(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doRequest(t, r, nethttp.MethodGet, "/api/decisions/d1", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("get decision: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	d, _ := body["decision"].(map[string]any)
	if d["id"] != "d1" || d["status"] != "approved" {
		t.Fatalf("decision body: got=%v", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing X-Request-Id header")
	}

	rec, body = doRequest(t, r, nethttp.MethodGet, "/api/decisions/d1/causal-chain?depth=2&direction=effects", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("causal chain: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	chain, _ := body["chain"].(map[string]any)
	effects, _ := chain["effects"].([]any)
	causes, _ := chain["causes"].([]any)
	if len(effects) != 1 || len(causes) != 0 {
		t.Fatalf("chain: effects=%d causes=%d", len(effects), len(causes))
	}

	rec, body = doRequest(t, r, nethttp.MethodGet, "/api/decisions/d1/precedents?k=1&mode=semantic", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("precedents: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	set, _ := body["precedents"].(map[string]any)
	results, _ := set["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("precedents: got=%v", set)
	}
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t)
	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/decisions/missing", nethttp.StatusNotFound, string(domain.CodeNotFound)},
		{"/api/decisions/p1", nethttp.StatusBadRequest, string(domain.CodeValidation)},
		{"/api/decisions/d1/causal-chain?depth=-1", nethttp.StatusBadRequest, string(domain.CodeValidation)},
		{"/api/decisions/d1/causal-chain?direction=sideways", nethttp.StatusBadRequest, string(domain.CodeValidation)},
		{"/api/decisions/d1/precedents?k=abc", nethttp.StatusBadRequest, string(domain.CodeValidation)},
		{"/api/decisions/d1/precedents?mode=visual", nethttp.StatusBadRequest, string(domain.CodeValidation)},
	}
	for _, tc := range cases {
		rec, body := doRequest(t, r, nethttp.MethodGet, tc.path, nil)
		if rec.Code != tc.status {
			t.Fatalf("%s: status want=%d got=%d (%s)", tc.path, tc.status, rec.Code, rec.Body.String())
		}
		envelope, _ := body["error"].(map[string]any)
		if envelope["code"] != tc.code {
			t.Fatalf("%s: code want=%q got=%v", tc.path, tc.code, envelope["code"])
		}
	}
}

func TestGraphRoutes(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doRequest(t, r, nethttp.MethodPost, "/api/graph/expand", map[string]any{
		"view":   map[string]any{"nodes": []any{}, "relationships": []any{}},
		"nodeId": "d1",
	})
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expand: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	view, _ := body["view"].(map[string]any)
	if nodes, _ := view["nodes"].([]any); len(nodes) != 3 {
		t.Fatalf("expand nodes: want=3 got=%d", len(nodes))
	}

	rec, _ = doRequest(t, r, nethttp.MethodPost, "/api/graph/expand", map[string]any{"nodeId": ""})
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("expand empty id: want=400 got=%d", rec.Code)
	}

	rec, body = doRequest(t, r, nethttp.MethodGet, "/api/graph/nodes/p1/explore?depth=2&limit=10", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("explore: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	view, _ = body["view"].(map[string]any)
	if nodes, _ := view["nodes"].([]any); len(nodes) != 3 {
		t.Fatalf("explore nodes: want=3 got=%d", len(nodes))
	}

	rec, body = doRequest(t, r, nethttp.MethodGet, "/api/graph/schema", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("schema: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	view, _ = body["view"].(map[string]any)
	if nodes, _ := view["nodes"].([]any); len(nodes) != 2 {
		t.Fatalf("schema nodes: want=2 got=%d", len(nodes))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)
	rec, _ := doRequest(t, r, nethttp.MethodGet, "/healthcheck", nil)
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: got=%d %q", rec.Code, rec.Body.String())
	}
	_, _ = doRequest(t, r, nethttp.MethodGet, "/api/decisions/d1", nil)
	rec, _ = doRequest(t, r, nethttp.MethodGet, "/metrics", nil)
	if rec.Code != nethttp.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("decisiontrace_http_requests_total")) {
		t.Fatalf("metrics: got=%d", rec.Code)
	}
}

func newCustomerRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := graph.NewMemoryStore(domain.GraphView{
		Nodes: []domain.Node{
			{ID: "c1", Labels: []string{domain.LabelPerson}, Properties: map[string]any{"name": "Pat Doe", "risk_score": 0.4}},
			{ID: "acct1", Labels: []string{domain.LabelAccount}, Properties: map[string]any{"account_number": "ACC-1"}},
			{ID: "d1", Labels: []string{domain.LabelDecision}, Properties: map[string]any{"decision_type": "approval", "timestamp": "2024-05-01"}},
			{ID: "d2", Labels: []string{domain.LabelDecision}, Properties: map[string]any{"decision_type": "escalation", "timestamp": "2024-06-01"}},
			{ID: "pol1", Labels: []string{domain.LabelPolicy}, Properties: map[string]any{"name": "Credit limits", "category": "credit"}},
			{ID: "pol2", Labels: []string{domain.LabelPolicy}, Properties: map[string]any{"name": "Wire review", "category": "payments"}},
		},
		Relationships: []domain.Relationship{
			{ID: "r1", Type: domain.RelAbout, StartNodeID: "d1", EndNodeID: "c1"},
			{ID: "r2", Type: domain.RelAbout, StartNodeID: "d2", EndNodeID: "c1"},
			{ID: "r3", Type: "HAS_ACCOUNT", StartNodeID: "c1", EndNodeID: "acct1"},
		},
	})
	uc := tracegraph.New(tracegraph.UsecasesDeps{Log: logger.Nop(), Graph: store, Schema: store, Limits: steps.DefaultLimits()})
	return NewRouter(RouterConfig{Log: logger.Nop(), CustomerHandler: httpH.NewCustomerHandler(uc)})
}

func TestCustomerAndPolicyRoutes(t *testing.T) {
	r := newCustomerRouter(t)

	rec, body := doRequest(t, r, nethttp.MethodGet, "/api/customers?q=acc-1", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("search: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	customers, _ := body["customers"].([]any)
	if len(customers) != 1 {
		t.Fatalf("search: want 1 customer got=%v", body)
	}
	c, _ := customers[0].(map[string]any)
	if c["id"] != "c1" || c["account_count"] != float64(1) || c["decision_count"] != float64(2) {
		t.Fatalf("customer summary: got=%v", c)
	}

	rec, body = doRequest(t, r, nethttp.MethodGet, "/api/customers/c1/decisions?decision_type=approval", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("decisions: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	decisions, _ := body["decisions"].([]any)
	if len(decisions) != 1 || decisions[0].(map[string]any)["id"] != "d1" {
		t.Fatalf("decisions: got=%v", body)
	}

	rec, body = doRequest(t, r, nethttp.MethodGet, "/api/policies?category=CREDIT", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("policies: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	policies, _ := body["policies"].([]any)
	if len(policies) != 1 || policies[0].(map[string]any)["id"] != "pol1" {
		t.Fatalf("policies: got=%v", body)
	}

	for path, status := range map[string]int{
		"/api/customers":                        nethttp.StatusBadRequest,
		"/api/customers?q=pat&limit=x":          nethttp.StatusBadRequest,
		"/api/customers/ghost/decisions":        nethttp.StatusNotFound,
		"/api/customers/d1/decisions?limit=500": nethttp.StatusBadRequest,
	} {
		if rec, _ := doRequest(t, r, nethttp.MethodGet, path, nil); rec.Code != status {
			t.Fatalf("%s: want=%d got=%d (%s)", path, status, rec.Code, rec.Body.String())
		}
	}
}
