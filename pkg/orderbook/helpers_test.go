package orderbook

import (
	"context"
	"errors"
	"time"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/shopspring/decimal"
)

var (
	testPair  = model.NewPair("BTC", "USDT")
	errReload = errors.New("reload failed")
	baseTime  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// memSource is an OrderSource over a map. Tests mutate the stored orders to
// simulate fills or cancels that happened after an order entered the book.
type memSource struct {
	orders map[int64]*model.Order
	fail   map[int64]bool
	calls  int
}

func newMemSource() *memSource {
	return &memSource{
		orders: make(map[int64]*model.Order),
		fail:   make(map[int64]bool),
	}
}

func (s *memSource) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	s.calls++
	if s.fail[id] {
		return nil, errReload
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (s *memSource) put(o *model.Order) *model.Order {
	s.orders[o.ID] = o
	return o
}

func newTestBook() (*OrderBook, *memSource) {
	src := newMemSource()
	return NewOrderBook(testPair, src, nil), src
}

func limitOrder(id int64, side model.OrderSide, price string, qty string, offset time.Duration) *model.Order {
	return &model.Order{
		ID:             id,
		UserID:         id * 10,
		Currency:       testPair.Currency,
		Coin:           testPair.Coin,
		Side:           side,
		Type:           model.OrderTypeLimit,
		Price:          decimal.RequireFromString(price),
		Quantity:       decimal.RequireFromString(qty),
		FilledQuantity: decimal.Zero,
		Status:         model.OrderStatusPending,
		UpdatedAt:      baseTime.Add(offset),
	}
}

func marketOrder(id int64, side model.OrderSide, qty string, offset time.Duration) *model.Order {
	o := limitOrder(id, side, "0", qty, offset)
	o.Type = model.OrderTypeMarket
	o.Price = decimal.Zero
	return o
}

// addAll registers orders with the source and the book.
func addAll(ob *OrderBook, src *memSource, orders ...*model.Order) {
	for _, o := range orders {
		ob.AddOrder(src.put(o))
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
