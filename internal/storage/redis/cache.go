package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"domain-check-gateway/internal/checker"
)

type Client struct {
	*redis.Client
	ttl time.Duration
}

func NewClient(redisURL string, ttl time.Duration) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	return &Client{
		Client: redis.NewClient(opt),
		ttl:    ttl,
	}
}

func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.Set(ctx, key, data, expiration).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

func resultKey(domain string) string {
	return fmt.Sprintf("check:result:%s", domain)
}

// GetResult implements checker.Cache. A missing key is (nil, nil).
func (c *Client) GetResult(ctx context.Context, domain string) (*checker.Result, error) {
	var r checker.Result
	err := c.GetJSON(ctx, resultKey(domain), &r)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SetResult implements checker.Cache.
func (c *Client) SetResult(ctx context.Context, domain string, r checker.Result) error {
	return c.SetJSON(ctx, resultKey(domain), r, c.ttl)
}
