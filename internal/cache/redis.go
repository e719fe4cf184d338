package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

type Client struct {
	rdb         *redis.Client
	maxRequests int
	limitWindow time.Duration
}

func NewClient(addr string, maxRequestsPerMinute int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return &Client{
		rdb:         rdb,
		maxRequests: maxRequestsPerMinute,
		limitWindow: time.Minute,
	}, nil
}

// IsRateLimited counts a request for key in a one-minute window. It
// fails open: Redis errors never block a request.
func (c *Client) IsRateLimited(ctx context.Context, key string) bool {
	if c.maxRequests <= 0 {
		return false
	}
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	pipe := c.rdb.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, c.limitWindow)
	_, err := pipe.Exec(ctx)

	if err != nil {
		return false
	}

	return incr.Val() > int64(c.maxRequests)
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

func (c *Client) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
