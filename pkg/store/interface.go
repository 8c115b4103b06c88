package store

import (
	"context"

	"github.com/joripage/exchange-core/pkg/model"
)

type IOrder interface {
	FindOrder(ctx context.Context, id int64) (*model.Order, error)
	LoadResumable(ctx context.Context, currency, coin string) ([]*model.Order, error)
	UpdateOrders(ctx context.Context, updates []*model.OrderUpdate) error
}

type ITrade interface {
	InsertTrades(ctx context.Context, trades []*model.Trade) error
}

type IBalance interface {
	ApplyBalanceDeltas(ctx context.Context, deltas []*model.BalanceDelta) error
}
