package store

import (
	"context"

	"github.com/joripage/exchange-core/pkg/model"
)

// SQLSink sends write buffer flushes to the repos of one database.
type SQLSink struct {
	orders   IOrder
	trades   ITrade
	balances IBalance
}

func NewSQLSink(repo IRepo) *SQLSink {
	return &SQLSink{
		orders:   repo.Order(),
		trades:   repo.Trade(),
		balances: repo.Balance(),
	}
}

func (s *SQLSink) UpdateOrders(ctx context.Context, updates []*model.OrderUpdate) error {
	return s.orders.UpdateOrders(ctx, updates)
}

func (s *SQLSink) InsertTrades(ctx context.Context, trades []*model.Trade) error {
	return s.trades.InsertTrades(ctx, trades)
}

func (s *SQLSink) ApplyBalanceDeltas(ctx context.Context, deltas []*model.BalanceDelta) error {
	return s.balances.ApplyBalanceDeltas(ctx, deltas)
}
