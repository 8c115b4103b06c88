package store

import (
	"context"

	"github.com/joripage/exchange-core/pkg/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BalanceSQLRepo struct {
	db *gorm.DB
}

func NewBalanceSQLRepo(db *gorm.DB) *BalanceSQLRepo {
	return &BalanceSQLRepo{
		db: db,
	}
}

func (s *BalanceSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// ApplyBalanceDeltas adds each delta to its (user, currency) row, creating
// the row when it does not exist yet.
func (r *BalanceSQLRepo) ApplyBalanceDeltas(ctx context.Context, deltas []*model.BalanceDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	return r.dbWithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range deltas {
			if err := upsertBalance(tx, d).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertBalance(tx *gorm.DB, d *model.BalanceDelta) *gorm.DB {
	rec := &BalanceRecord{
		UserID:           d.UserID,
		Currency:         d.Currency,
		Balance:          d.Balance,
		AvailableBalance: d.AvailableBalance,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "currency"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "balance"}, Value: gorm.Expr("balances.balance + ?", d.Balance)},
			{Column: clause.Column{Name: "available_balance"}, Value: gorm.Expr("balances.available_balance + ?", d.AvailableBalance)},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(rec)
}
