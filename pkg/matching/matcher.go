package matching

import (
	"context"
	"fmt"
	"sync"

	"github.com/joripage/exchange-core/pkg/metrics"
	"github.com/joripage/exchange-core/pkg/model"
	"github.com/joripage/exchange-core/pkg/orderbook"
	"github.com/joripage/exchange-core/pkg/writebuffer"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MatcherStats struct {
	Book      orderbook.Stats `json:"book"`
	Service   ServiceStats    `json:"service"`
	LastPrice decimal.Decimal `json:"lastPrice"`
}

// Matcher is the single owner of one pair's book and buffer. Every method
// takes the matcher lock, so the book is never touched concurrently.
type Matcher struct {
	mu sync.Mutex

	pair    model.Pair
	book    *orderbook.OrderBook
	source  orderbook.OrderSource
	service *Service
	fees    FeeSchedule

	lastPrice decimal.Decimal

	recorder *metrics.Recorder
	logger   *zap.Logger
}

type MatcherOption func(*Matcher)

func WithMatcherLogger(l *zap.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = l
	}
}

func WithMatcherMetrics(r *metrics.Recorder) MatcherOption {
	return func(m *Matcher) {
		m.recorder = r
	}
}

func NewMatcher(pair model.Pair, source orderbook.OrderSource, service *Service, fees FeeSchedule, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		pair:    pair,
		source:  source,
		service: service,
		fees:    fees,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("pair", pair.String()))
	m.book = orderbook.NewOrderBook(pair, source, m.logger)
	return m
}

func (m *Matcher) Pair() model.Pair {
	return m.pair
}

// Submit rests order in the book and matches whatever now crosses.
func (m *Matcher) Submit(ctx context.Context, order *model.Order) (int, error) {
	if order == nil {
		return 0, fmt.Errorf("%w: nil order", ErrOrderRejected)
	}
	if !order.Type.IsMarketFamily() && !order.Price.IsPositive() {
		return 0, fmt.Errorf("%w: order %d has price %s", ErrOrderRejected, order.ID, order.Price)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.book.AddOrder(order) {
		return 0, fmt.Errorf("%w: order %d", ErrOrderRejected, order.ID)
	}
	return m.matchLocked(ctx)
}

// Cancel takes a resting order out of the book and releases its funds.
func (m *Matcher) Cancel(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot, ok := m.book.GetOrder(id)
	if !ok {
		return fmt.Errorf("%w: order %d", ErrOrderNotInBook, id)
	}
	fresh, err := m.source.GetOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("reload order %d for cancel: %w", id, err)
	}

	m.book.RemoveOrder(id)
	return m.service.BufferCancel(ctx, latest(snapshot, fresh))
}

// latest picks the most advanced known state of an order. An order the
// store does not know yet is canceled from the book's copy.
func latest(snapshot, fresh *model.Order) *model.Order {
	if fresh == nil {
		return snapshot.Clone()
	}
	return orderbook.Latest(snapshot, fresh)
}

// MatchAll matches until the book no longer crosses.
func (m *Matcher) MatchAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchLocked(ctx)
}

// Load fills the book with the pair's resumable orders and matches them.
func (m *Matcher) Load(ctx context.Context, loader orderbook.OrderLoader) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.book.LoadFromDatabase(ctx, loader)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", m.pair, err)
	}
	if _, err := m.matchLocked(ctx); err != nil {
		return n, err
	}
	return n, nil
}

func (m *Matcher) matchLocked(ctx context.Context) (int, error) {
	matched := 0
	defer func() {
		m.recorder.BookDepth(m.pair.String(), m.book.GetStats().IndexedOrders)
		if m.service.ShouldFlush() {
			m.service.Flush(ctx)
		}
	}()

	for ctx.Err() == nil {
		pair := m.book.GetMatchablePair(ctx)
		if pair == nil {
			break
		}
		buy, sell := pair.Buy.Order, pair.Sell.Order

		price, ok := m.executionPrice(pair)
		if !ok {
			// two market orders and no trade yet: the later one is canceled
			older, newer := buy, sell
			if pair.Sell.Timestamp.Before(pair.Buy.Timestamp) {
				older, newer = sell, buy
			}
			m.book.AddOrder(older)
			m.logger.Warn("cancel market order with no reference price",
				zap.Int64("order_id", newer.ID), zap.Int64("counter_order_id", older.ID))
			if err := m.service.BufferCancel(ctx, newer); err != nil {
				return matched, err
			}
			continue
		}

		qty := decimal.Min(buy.Remaining(), sell.Remaining())
		buyerMaker := isBuyerMaker(pair)
		buyFee, sellFee := m.fees.Fees(price.Mul(qty), buyerMaker)

		if _, err := m.service.BufferMatch(ctx, buy, sell, price, qty, buyFee, sellFee, buyerMaker); err != nil {
			m.book.AddOrder(buy)
			m.book.AddOrder(sell)
			return matched, err
		}

		m.lastPrice = price
		matched++
		m.recorder.MatchedPair(m.pair.String())

		// partially filled orders go back with their original timestamp
		m.book.AddOrder(buy)
		m.book.AddOrder(sell)
	}
	return matched, nil
}

// executionPrice is the maker's limit price. Against a market order the
// limit side's price is used; two market orders trade at the last price.
func (m *Matcher) executionPrice(p *orderbook.MatchedPair) (decimal.Decimal, bool) {
	buyMarket := p.Buy.Type.IsMarketFamily()
	sellMarket := p.Sell.Type.IsMarketFamily()
	switch {
	case buyMarket && sellMarket:
		return m.lastPrice, m.lastPrice.IsPositive()
	case buyMarket:
		return p.Sell.Order.Price, true
	case sellMarket:
		return p.Buy.Order.Price, true
	case isBuyerMaker(p):
		return p.Buy.Order.Price, true
	default:
		return p.Sell.Order.Price, true
	}
}

// isBuyerMaker reports whether the buy side rested first. Market orders are
// always takers.
func isBuyerMaker(p *orderbook.MatchedPair) bool {
	if p.Buy.Type.IsMarketFamily() {
		return false
	}
	if p.Sell.Type.IsMarketFamily() {
		return true
	}
	return p.Buy.Timestamp.Before(p.Sell.Timestamp)
}

func (m *Matcher) Flush(ctx context.Context) *writebuffer.FlushResult {
	return m.service.Flush(ctx)
}

func (m *Matcher) Stats() MatcherStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MatcherStats{
		Book:      m.book.GetStats(),
		Service:   m.service.GetStats(),
		LastPrice: m.lastPrice,
	}
}

// BestBidAsk returns the top of book. ok is false when either side has no
// limit price on top.
func (m *Matcher) BestBidAsk() (bid, ask decimal.Decimal, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid, bidOK := m.book.GetBestBid()
	ask, askOK := m.book.GetBestAsk()
	return bid, ask, bidOK && askOK
}
