package store

import (
	"context"

	"github.com/joripage/exchange-core/pkg/model"
	"gorm.io/gorm"
)

const tradeInsertBatchSize = 500

type TradeSQLRepo struct {
	db *gorm.DB
}

func NewTradeSQLRepo(db *gorm.DB) *TradeSQLRepo {
	return &TradeSQLRepo{
		db: db,
	}
}

func (s *TradeSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (r *TradeSQLRepo) InsertTrades(ctx context.Context, trades []*model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	records := make([]*TradeRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, NewTradeRecord(t))
	}
	return r.dbWithContext(ctx).CreateInBatches(records, tradeInsertBatchSize).Error
}
