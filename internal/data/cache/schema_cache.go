package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
)

// schemaVersion is bumped whenever the cached GraphView shape changes.
const schemaVersion = "v1"

type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// SchemaCache stores the aggregated schema view as JSON under a versioned key.
type SchemaCache struct {
	rdb kv
	key string
	ttl time.Duration
}

func NewSchemaCache(rdb *goredis.Client, prefix string, ttl time.Duration) *SchemaCache {
	if rdb == nil {
		return nil
	}
	return newSchemaCache(rdb, prefix, ttl)
}

func newSchemaCache(rdb kv, prefix string, ttl time.Duration) *SchemaCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "decisiontrace"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SchemaCache{rdb: rdb, key: prefix + ":schema:" + schemaVersion, ttl: ttl}
}

func (c *SchemaCache) Key() string { return c.key }

func (c *SchemaCache) Get(ctx context.Context) (tracegraph.GraphView, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return tracegraph.GraphView{}, false, nil
	}
	if err != nil {
		return tracegraph.GraphView{}, false, fmt.Errorf("schema cache get: %w", err)
	}
	var view tracegraph.GraphView
	if err := json.Unmarshal(raw, &view); err != nil {
		return tracegraph.GraphView{}, false, fmt.Errorf("schema cache decode: %w", err)
	}
	return view, true, nil
}

func (c *SchemaCache) Set(ctx context.Context, view tracegraph.GraphView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("schema cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("schema cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached view so the next read aggregates from the graph.
func (c *SchemaCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("schema cache invalidate: %w", err)
	}
	return nil
}
