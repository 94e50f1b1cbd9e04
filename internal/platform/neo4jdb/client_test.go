package neo4jdb

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

func TestConfigApplyEnv(t *testing.T) {
	t.Setenv("NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("NEO4J_PASSWORD", "s3cret")
	t.Setenv("NEO4J_TIMEOUT_SECONDS", "3")
	cfg := DefaultConfig().ApplyEnv()
	if cfg.URI != "neo4j://graph:7687" || cfg.Password != "s3cret" {
		t.Fatalf("env overlay: got=%+v", cfg)
	}
	if cfg.User != "neo4j" || cfg.MaxPoolSize != 50 {
		t.Fatalf("defaults lost: got=%+v", cfg)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Fatalf("timeout: want=3s got=%s", cfg.ConnectTimeout)
	}
}

func TestNewWithoutURIIsOptional(t *testing.T) {
	c, err := New(context.Background(), logger.Nop(), DefaultConfig())
	if err != nil || c != nil {
		t.Fatalf("empty uri: want (nil, nil) got=(%v, %v)", c, err)
	}
	if _, err := New(context.Background(), nil, Config{URI: "neo4j://x"}); err == nil {
		t.Fatalf("nil logger: want error")
	}
}
