package cache

import (
	"context"
	"sync"
	"time"

	"github.com/joripage/exchange-core/pkg/model"
)

type memoryEntry struct {
	order     *model.Order
	expiresAt time.Time
}

// MemoryOrderCache is an in-process order cache for deployments without
// redis. Orders are stored and returned as copies.
type MemoryOrderCache struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	writes  int
}

const sweepEvery = 1024

func NewMemoryOrderCache(ttl time.Duration) *MemoryOrderCache {
	if ttl <= 0 {
		ttl = DefaultOrderTTL
	}
	return &MemoryOrderCache{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryOrderCache) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, id)
		return nil, nil
	}
	return e.order.Clone(), nil
}

func (c *MemoryOrderCache) SetOrder(_ context.Context, order *model.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[order.ID] = memoryEntry{order: order.Clone(), expiresAt: now.Add(c.ttl)}
	c.writes++
	if c.writes%sweepEvery == 0 {
		for id, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, id)
			}
		}
	}
	return nil
}

func (c *MemoryOrderCache) DeleteOrder(_ context.Context, id int64) error {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return nil
}

func (c *MemoryOrderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
