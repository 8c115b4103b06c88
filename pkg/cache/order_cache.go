package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultOrderTTL = 10 * time.Minute
	orderKeyPrefix  = "exchange:order:"
)

// RedisOrderCache keeps the latest known state of open orders in redis.
type RedisOrderCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisOrderCache(client redis.Cmdable, ttl time.Duration) *RedisOrderCache {
	if ttl <= 0 {
		ttl = DefaultOrderTTL
	}
	return &RedisOrderCache{
		client: client,
		ttl:    ttl,
	}
}

func orderKey(id int64) string {
	return orderKeyPrefix + strconv.FormatInt(id, 10)
}

// GetOrder returns nil, nil on a cache miss.
func (c *RedisOrderCache) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	raw, err := c.client.Get(ctx, orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeOrder(raw)
}

func (c *RedisOrderCache) SetOrder(ctx context.Context, order *model.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order %d: %w", order.ID, err)
	}
	return c.client.Set(ctx, orderKey(order.ID), raw, c.ttl).Err()
}

func (c *RedisOrderCache) DeleteOrder(ctx context.Context, id int64) error {
	return c.client.Del(ctx, orderKey(id)).Err()
}

func decodeOrder(raw []byte) (*model.Order, error) {
	var order model.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode cached order: %w", err)
	}
	return &order, nil
}
