package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/joripage/exchange-core/pkg/model"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

type OrderSQLRepo struct {
	db *gorm.DB
}

func NewOrderSQLRepo(db *gorm.DB) *OrderSQLRepo {
	return &OrderSQLRepo{
		db: db,
	}
}

func (s *OrderSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// FindOrder reads from the primary so freshness checks never see replica lag.
// A missing order yields nil, nil.
func (r *OrderSQLRepo) FindOrder(ctx context.Context, id int64) (*model.Order, error) {
	var rec OrderRecord
	err := r.dbWithContext(ctx).Clauses(dbresolver.Write).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.ToModel(), nil
}

func (r *OrderSQLRepo) LoadResumable(ctx context.Context, currency, coin string) ([]*model.Order, error) {
	var records []*OrderRecord
	err := r.resumableQuery(r.dbWithContext(ctx), currency, coin).Find(&records).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*model.Order, 0, len(records))
	for _, rec := range records {
		orders = append(orders, rec.ToModel())
	}
	return orders, nil
}

func (r *OrderSQLRepo) resumableQuery(db *gorm.DB, currency, coin string) *gorm.DB {
	return db.Model(&OrderRecord{}).
		Clauses(dbresolver.Write).
		Where("currency = ? AND coin = ? AND status IN ?", currency, coin, model.ResumableStatuses).
		Order("updated_at ASC, id ASC")
}

// UpdateOrders writes every update in one transaction. UpdateColumns leaves
// updated_at alone, so the load order of resting orders is preserved.
func (r *OrderSQLRepo) UpdateOrders(ctx context.Context, updates []*model.OrderUpdate) error {
	return r.dbWithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			cols := orderColumns(u)
			if len(cols) == 0 {
				continue
			}
			if err := tx.Model(&OrderRecord{}).Where("id = ?", u.OrderID).UpdateColumns(cols).Error; err != nil {
				return fmt.Errorf("update order %d: %w", u.OrderID, err)
			}
		}
		return nil
	})
}

func orderColumns(u *model.OrderUpdate) map[string]interface{} {
	cols := make(map[string]interface{}, 2)
	if u.Status != "" {
		cols["status"] = u.Status
	}
	if u.FilledQuantity.Valid {
		cols["filled_quantity"] = u.FilledQuantity.Decimal
	}
	return cols
}
