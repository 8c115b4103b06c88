package orderbook

import (
	"context"
	"fmt"

	"github.com/joripage/exchange-core/pkg/model"
	"go.uber.org/zap"
)

// OrderSource returns the current state of an order. A nil order with a nil
// error means the order no longer exists.
type OrderSource interface {
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
}

// OrderCache is a read-through cache in front of the backing store.
type OrderCache interface {
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	SetOrder(ctx context.Context, order *model.Order) error
}

// OrderStore loads orders directly from the backing store.
type OrderStore interface {
	FindOrder(ctx context.Context, id int64) (*model.Order, error)
}

// OrderLoader lists resumable orders of a pair, oldest update first.
type OrderLoader interface {
	LoadResumable(ctx context.Context, currency, coin string) ([]*model.Order, error)
}

type storeOrderSource struct {
	store OrderStore
}

func NewStoreOrderSource(store OrderStore) OrderSource {
	return &storeOrderSource{store: store}
}

func (s *storeOrderSource) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.store.FindOrder(ctx, id)
}

type cachedOrderSource struct {
	cache  OrderCache
	store  OrderStore
	logger *zap.Logger
}

// NewCachedOrderSource reads from cache first and falls back to store on a
// miss or a cache error. Orders read from the store are written back.
func NewCachedOrderSource(cache OrderCache, store OrderStore, logger *zap.Logger) OrderSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedOrderSource{
		cache:  cache,
		store:  store,
		logger: logger,
	}
}

func (s *cachedOrderSource) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	order, err := s.cache.GetOrder(ctx, id)
	if err != nil {
		s.logger.Warn("order cache read failed, falling back to store",
			zap.Int64("order_id", id), zap.Error(err))
	}
	if order != nil {
		return order, nil
	}

	order, err = s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload order %d: %w", id, err)
	}
	if order == nil {
		return nil, nil
	}

	if err := s.cache.SetOrder(ctx, order); err != nil {
		s.logger.Warn("order cache write-back failed", zap.Int64("order_id", id), zap.Error(err))
	}
	return order, nil
}
