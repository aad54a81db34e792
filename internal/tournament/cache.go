package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryCache stores global (unscoped) summaries keyed by game.
type SummaryCache interface {
	Get(ctx context.Context, gameID uint) (*Summary, bool, error)
	Set(ctx context.Context, gameID uint, summary *Summary, ttl time.Duration) error
	Invalidate(ctx context.Context, gameID uint) error
}

type RedisSummaryCache struct {
	client *redis.Client
	prefix string
}

func NewRedisSummaryCache(client *redis.Client) *RedisSummaryCache {
	return &RedisSummaryCache{client: client, prefix: "worldcup:summary:"}
}

// OpenRedis parses a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisSummaryCache) key(gameID uint) string {
	return fmt.Sprintf("%s%d", c.prefix, gameID)
}

func (c *RedisSummaryCache) Get(ctx context.Context, gameID uint) (*Summary, bool, error) {
	raw, err := c.client.Get(ctx, c.key(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

// Set stores summary for ttl. A non-positive ttl stores nothing, since redis
// would keep the key forever.
func (c *RedisSummaryCache) Set(ctx context.Context, gameID uint, summary *Summary, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(gameID), raw, ttl).Err()
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context, gameID uint) error {
	return c.client.Del(ctx, c.key(gameID)).Err()
}
