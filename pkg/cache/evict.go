package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/joripage/exchange-core/pkg/model"
)

type OrderDeleter interface {
	DeleteOrder(ctx context.Context, id int64) error
}

// EvictClosed drops filled and canceled orders from c. Call it only with
// updates the backing store already holds, so a later miss reads the closed
// state from the store instead of an older one.
func EvictClosed(ctx context.Context, c OrderDeleter, updates []*model.OrderUpdate) error {
	var errs []error
	for _, u := range updates {
		if u.Status != model.OrderStatusFilled && u.Status != model.OrderStatusCanceled {
			continue
		}
		if err := c.DeleteOrder(ctx, u.OrderID); err != nil {
			errs = append(errs, fmt.Errorf("evict order %d: %w", u.OrderID, err))
		}
	}
	return errors.Join(errs...)
}
