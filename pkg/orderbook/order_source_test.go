package orderbook

import (
	"context"
	"errors"
	"testing"

	"github.com/joripage/exchange-core/pkg/model"
)

type fakeCache struct {
	orders  map[int64]*model.Order
	readErr error
	sets    int
}

func (c *fakeCache) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	return c.orders[id], nil
}

func (c *fakeCache) SetOrder(_ context.Context, o *model.Order) error {
	c.sets++
	c.orders[o.ID] = o
	return nil
}

type fakeStore struct {
	orders map[int64]*model.Order
	err    error
	finds  int
}

func (s *fakeStore) FindOrder(_ context.Context, id int64) (*model.Order, error) {
	s.finds++
	if s.err != nil {
		return nil, s.err
	}
	return s.orders[id], nil
}

func TestCachedOrderSourceHit(t *testing.T) {
	cached := limitOrder(1, model.OrderSideBuy, "100", "1", 0)
	cache := &fakeCache{orders: map[int64]*model.Order{1: cached}}
	store := &fakeStore{orders: map[int64]*model.Order{}}

	got, err := NewCachedOrderSource(cache, store, nil).GetOrder(context.Background(), 1)
	if err != nil || got != cached {
		t.Fatalf("expected cached order, got %+v err=%v", got, err)
	}
	if store.finds != 0 {
		t.Errorf("store must not be hit on cache hit")
	}
}

func TestCachedOrderSourceMissFallsBackAndWritesBack(t *testing.T) {
	stored := limitOrder(1, model.OrderSideBuy, "100", "1", 0)
	cache := &fakeCache{orders: map[int64]*model.Order{}}
	store := &fakeStore{orders: map[int64]*model.Order{1: stored}}
	src := NewCachedOrderSource(cache, store, nil)

	got, err := src.GetOrder(context.Background(), 1)
	if err != nil || got != stored {
		t.Fatalf("expected stored order, got %+v err=%v", got, err)
	}
	if cache.sets != 1 {
		t.Errorf("expected write-back to cache")
	}

	if _, err := src.GetOrder(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.finds != 1 {
		t.Errorf("second read should be served by the cache, finds=%d", store.finds)
	}
}

func TestCachedOrderSourceCacheErrorFallsBack(t *testing.T) {
	stored := limitOrder(1, model.OrderSideBuy, "100", "1", 0)
	cache := &fakeCache{orders: map[int64]*model.Order{}, readErr: errors.New("redis down")}
	store := &fakeStore{orders: map[int64]*model.Order{1: stored}}

	got, err := NewCachedOrderSource(cache, store, nil).GetOrder(context.Background(), 1)
	if err != nil || got != stored {
		t.Fatalf("expected store fallback, got %+v err=%v", got, err)
	}
}

func TestCachedOrderSourceNotFound(t *testing.T) {
	cache := &fakeCache{orders: map[int64]*model.Order{}}
	store := &fakeStore{orders: map[int64]*model.Order{}}

	got, err := NewCachedOrderSource(cache, store, nil).GetOrder(context.Background(), 9)
	if err != nil || got != nil {
		t.Fatalf("expected nil order and nil error, got %+v err=%v", got, err)
	}
	if cache.sets != 0 {
		t.Errorf("missing order must not be cached")
	}
}

func TestStoreOrderSourceWrapsStoreError(t *testing.T) {
	store := &fakeStore{err: errReload}
	if _, err := NewStoreOrderSource(store).GetOrder(context.Background(), 1); !errors.Is(err, errReload) {
		t.Fatalf("expected store error, got %v", err)
	}
}
