// Package toolcache provides the Redis-backed TTL cache for tool API results.
//
// Entries are keyed tool:{source_type}:{source_id} and carry the normalized
// result JSON, a content hash, and the fetch timestamp. Reads and writes are
// idempotent and safe to race; TTL bounds staleness per source type, so
// last-write-wins between concurrent runs is acceptable.
package toolcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces tool result entries within the shared Redis database.
const keyPrefix = "tool"

// entry is the stored cache record.
type entry struct {
	Data      map[string]any `json:"data"`
	Hash      string         `json:"hash"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Cache is a Redis-backed implementation of the adapter cache contract.
//
// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a Cache over an established Redis client.
func New(client *redis.Client, logger *slog.Logger) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, logger: logger}, nil
}

// Connect dials Redis at the given URL (redis://...) and verifies the
// connection with a ping.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Get returns the cached result for (sourceType, sourceID), reporting whether
// a live entry existed. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, sourceType, sourceID string) (map[string]any, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(sourceType, sourceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten
		// by the next successful fetch.
		c.logger.Warn("discarding corrupt cache entry",
			"source_type", sourceType, "source_id", sourceID, "error", err)
		return nil, false, nil
	}
	return e.Data, true, nil
}

// Set stores a result with the source-specific TTL. The content hash lets
// operators spot distinct fetches that produced identical payloads.
func (c *Cache) Set(ctx context.Context, sourceType, sourceID string, data map[string]any, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	sum := sha256.Sum256(payload)
	e := entry{
		Data:      data,
		Hash:      hex.EncodeToString(sum[:]),
		FetchedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(sourceType, sourceID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Health reports whether Redis answers a ping.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func cacheKey(sourceType, sourceID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, sourceType, sourceID)
}
