package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

func writeSnapshot(t *testing.T) string {
	t.Helper()
	view := domain.GraphView{
		Nodes: []domain.Node{
			{ID: "d1", Labels: []string{domain.LabelDecision}, Properties: map[string]any{
				domain.PropSemanticEmbedding: []float64{1, 0}, domain.PropStructuralEmbedding: []float64{1, 0},
			}},
			{ID: "d2", Labels: []string{domain.LabelDecision}, Properties: map[string]any{
				domain.PropSemanticEmbedding: []float64{0.9, 0.1}, domain.PropStructuralEmbedding: []float64{1, 0},
			}},
		},
		Relationships: []domain.Relationship{
			{ID: "r1", Type: domain.RelCaused, StartNodeID: "d1", EndNodeID: "d2"},
		},
	}
	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return path
}

func TestNewWithConfigMemoryBackendServesAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := DefaultConfig()
	cfg.Graph.Backend = GraphBackendMemory
	cfg.Graph.SnapshotPath = writeSnapshot(t)
	cfg.Redis.Addr = ""

	a, err := NewWithConfig(context.Background(), logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(a.Close)

	if a.Clients.Neo4j != nil || a.Clients.Postgres != nil || a.Clients.Redis != nil {
		t.Fatalf("memory backend should not open external clients")
	}

	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/decisions/d1/precedents?k=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("precedents: want=200 got=%d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Precedents domain.PrecedentSet `json:"precedents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Precedents.Results) != 1 || body.Precedents.Results[0].DecisionID != "d2" {
		t.Fatalf("precedents: got=%+v", body.Precedents)
	}

	rec = httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: want=200 got=%d", rec.Code)
	}
}

func TestNewWithConfigMissingSnapshotFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.Backend = GraphBackendMemory
	cfg.Graph.SnapshotPath = filepath.Join(t.TempDir(), "absent.json")
	if _, err := NewWithConfig(context.Background(), logger.Nop(), cfg); err == nil {
		t.Fatalf("expected error for missing snapshot")
	}
}

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestSnapshotReloadInvalidatesSchemaCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.Backend = GraphBackendMemory
	cfg.Graph.SnapshotPath = writeSnapshot(t)
	cfg.Graph.WatchSnapshot = true
	cfg.Redis.Addr = ""

	a, err := NewWithConfig(context.Background(), logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(a.Close)
	inv := &countingInvalidator{}
	a.schemaCache = inv
	a.Start()

	raw, err := os.ReadFile(cfg.Graph.SnapshotPath)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if err := os.WriteFile(cfg.Graph.SnapshotPath, raw, 0o600); err != nil {
		t.Fatalf("rewrite snapshot: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for inv.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("schema cache was not invalidated after reload")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
