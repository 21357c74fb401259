package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/valgdash/backend/pkg/logger"
)

// Client caches rendered dashboard responses keyed by view name.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetView(ctx context.Context, view string, response interface{}) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("view:%s", view), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set view cache: %w", err)
	}

	logger.Debug("View cached", zap.String("view", view), zap.Duration("ttl", c.ttl))
	return nil
}

func (c *Client) GetView(ctx context.Context, view string, response interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("view:%s", view)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get view cache: %w", err)
	}

	err = json.Unmarshal(data, response)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	logger.Debug("View cache hit", zap.String("view", view))
	return true, nil
}

// InvalidateViews drops every cached view. Ingest batches call this so
// readers never see a mix of old and new data.
func (c *Client) InvalidateViews(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "view:*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("View cache invalidated")
	return nil
}
