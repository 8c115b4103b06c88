package matching

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/joripage/exchange-core/pkg/writebuffer"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderCache receives the in-memory state of every order the service
// changes, so freshness checks see fills that are not flushed yet.
type OrderCache interface {
	SetOrder(ctx context.Context, order *model.Order) error
}

type ServiceStats struct {
	MatchCount int64             `json:"matchCount"`
	Buffer     writebuffer.Stats `json:"buffer"`
}

// Service turns matches and cancels into buffered order updates, trades and
// balance deltas.
type Service struct {
	buffer writebuffer.WriteBuffer
	cache  OrderCache
	logger *zap.Logger
	now    func() time.Time

	matchCount atomic.Int64
}

type ServiceOption func(*Service)

func WithOrderCache(c OrderCache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func NewService(buffer writebuffer.WriteBuffer, opts ...ServiceOption) *Service {
	s := &Service{
		buffer: buffer,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BufferMatch records a fill of quantity at price between buy and sell. Both
// orders are updated in place. Fees are in the quote currency.
func (s *Service) BufferMatch(
	ctx context.Context,
	buy, sell *model.Order,
	price, quantity, buyFee, sellFee decimal.Decimal,
	isBuyerMaker bool,
) (*model.Trade, error) {
	if err := validateFill(buy, sell, price, quantity, buyFee, sellFee); err != nil {
		return nil, err
	}

	cost := price.Mul(quantity)
	// quote the buyer had locked for this quantity at placement
	buyLocked := lockedQuote(buy, quantity)

	applyFill(buy, quantity)
	applyFill(sell, quantity)

	s.bufferOrder(buy)
	s.bufferOrder(sell)

	trade := model.Trade{
		BuyOrderID:   buy.ID,
		SellOrderID:  sell.ID,
		BuyerID:      buy.UserID,
		SellerID:     sell.UserID,
		Currency:     buy.Currency,
		Coin:         buy.Coin,
		Price:        price,
		Quantity:     quantity,
		BuyFee:       buyFee,
		SellFee:      sellFee,
		IsBuyerMaker: isBuyerMaker,
		CreatedAt:    s.now(),
	}
	s.buffer.AddTrade(trade)

	spent := cost.Add(buyFee)
	s.buffer.AddBalanceUpdate(buy.UserID, buy.Currency, model.BalanceDelta{
		Balance:          spent.Neg(),
		AvailableBalance: buyLocked.Sub(spent),
	})
	s.buffer.AddBalanceUpdate(buy.UserID, buy.Coin, model.BalanceDelta{
		Balance:          quantity,
		AvailableBalance: quantity,
	})
	s.buffer.AddBalanceUpdate(sell.UserID, sell.Coin, model.BalanceDelta{
		Balance: quantity.Neg(),
	})
	proceeds := cost.Sub(sellFee)
	s.buffer.AddBalanceUpdate(sell.UserID, sell.Currency, model.BalanceDelta{
		Balance:          proceeds,
		AvailableBalance: proceeds,
	})

	s.writeThrough(ctx, buy)
	s.writeThrough(ctx, sell)
	s.matchCount.Add(1)

	return &trade, nil
}

// BufferCancel closes order and releases what it still had locked.
func (s *Service) BufferCancel(ctx context.Context, order *model.Order) error {
	if order == nil {
		return fmt.Errorf("%w: nil order", ErrOrderClosed)
	}
	if order.Status == model.OrderStatusFilled || order.Status == model.OrderStatusCanceled {
		return fmt.Errorf("%w: order %d is %s", ErrOrderClosed, order.ID, order.Status)
	}

	remaining := order.Remaining()
	order.Status = model.OrderStatusCanceled
	s.buffer.AddOrder(order.ID, model.OrderUpdate{Status: model.OrderStatusCanceled})

	if remaining.IsPositive() {
		if order.Side == model.OrderSideBuy {
			if released := lockedQuote(order, remaining); released.IsPositive() {
				s.buffer.AddBalanceUpdate(order.UserID, order.Currency, model.BalanceDelta{AvailableBalance: released})
			}
		} else {
			s.buffer.AddBalanceUpdate(order.UserID, order.Coin, model.BalanceDelta{AvailableBalance: remaining})
		}
	}

	s.writeThrough(ctx, order)
	return nil
}

func (s *Service) GetStats() ServiceStats {
	return ServiceStats{
		MatchCount: s.matchCount.Load(),
		Buffer:     s.buffer.Stats(),
	}
}

func (s *Service) Flush(ctx context.Context) *writebuffer.FlushResult {
	return s.buffer.Flush(ctx)
}

func (s *Service) ShouldFlush() bool {
	return s.buffer.ShouldFlush()
}

func (s *Service) ResetMatchCount() {
	s.matchCount.Store(0)
}

func (s *Service) bufferOrder(o *model.Order) {
	s.buffer.AddOrder(o.ID, model.OrderUpdate{
		Status:         o.Status,
		FilledQuantity: decimal.NewNullDecimal(o.FilledQuantity),
	})
}

func (s *Service) writeThrough(ctx context.Context, o *model.Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetOrder(ctx, o); err != nil {
		s.logger.Warn("order cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

func validateFill(buy, sell *model.Order, price, quantity, buyFee, sellFee decimal.Decimal) error {
	switch {
	case buy == nil || sell == nil:
		return fmt.Errorf("%w: missing order", ErrInvalidFill)
	case buy.Side != model.OrderSideBuy || sell.Side != model.OrderSideSell:
		return fmt.Errorf("%w: orders %d and %d are not a buy and a sell", ErrInvalidFill, buy.ID, sell.ID)
	case buy.Pair() != sell.Pair():
		return fmt.Errorf("%w: pair %s against %s", ErrInvalidFill, buy.Pair(), sell.Pair())
	case !price.IsPositive():
		return fmt.Errorf("%w: price %s", ErrInvalidFill, price)
	case !quantity.IsPositive():
		return fmt.Errorf("%w: quantity %s", ErrInvalidFill, quantity)
	case buyFee.IsNegative() || sellFee.IsNegative():
		return fmt.Errorf("%w: negative fee", ErrInvalidFill)
	case !buy.CanMatch() || quantity.GreaterThan(buy.Remaining()):
		return fmt.Errorf("%w: quantity %s exceeds buy order %d remaining %s", ErrInvalidFill, quantity, buy.ID, buy.Remaining())
	case !sell.CanMatch() || quantity.GreaterThan(sell.Remaining()):
		return fmt.Errorf("%w: quantity %s exceeds sell order %d remaining %s", ErrInvalidFill, quantity, sell.ID, sell.Remaining())
	}
	return nil
}

func applyFill(o *model.Order, quantity decimal.Decimal) {
	o.FilledQuantity = o.FilledQuantity.Add(quantity)
	if o.Remaining().IsPositive() {
		o.Status = model.OrderStatusPartiallyFilled
	} else {
		o.Status = model.OrderStatusFilled
	}
}

// lockedQuote is the quote amount a buy order holds for quantity. Market
// buys lock nothing up front.
func lockedQuote(o *model.Order, quantity decimal.Decimal) decimal.Decimal {
	if o.Side != model.OrderSideBuy || o.Type.IsMarketFamily() {
		return decimal.Zero
	}
	return o.Price.Mul(quantity)
}
