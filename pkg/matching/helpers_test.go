package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joripage/exchange-core/pkg/cache"
	"github.com/joripage/exchange-core/pkg/model"
	"github.com/joripage/exchange-core/pkg/orderbook"
	"github.com/joripage/exchange-core/pkg/writebuffer"
	"github.com/shopspring/decimal"
)

var (
	testPair = model.NewPair("BTC", "USDT")
	baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memStore struct {
	mu     sync.Mutex
	orders map[int64]*model.Order
}

func newMemStore(orders ...*model.Order) *memStore {
	s := &memStore{orders: make(map[int64]*model.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o.Clone()
	}
	return s
}

func (s *memStore) FindOrder(_ context.Context, id int64) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Clone(), nil
}

func (s *memStore) LoadResumable(_ context.Context, currency, coin string) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Order
	for _, o := range s.orders {
		if o.Currency == currency && o.Coin == coin && o.CanMatch() {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

type recordingSink struct {
	mu       sync.Mutex
	orders   []*model.OrderUpdate
	trades   []*model.Trade
	balances []*model.BalanceDelta
}

func (s *recordingSink) UpdateOrders(_ context.Context, updates []*model.OrderUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, updates...)
	return nil
}

func (s *recordingSink) InsertTrades(_ context.Context, trades []*model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *recordingSink) ApplyBalanceDeltas(_ context.Context, deltas []*model.BalanceDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = append(s.balances, deltas...)
	return nil
}

func (s *recordingSink) balance(userID int64, currency string) *model.BalanceDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.balances {
		if d.UserID == userID && d.Currency == currency {
			return d
		}
	}
	return nil
}

func (s *recordingSink) order(id int64) *model.OrderUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.orders {
		if u.OrderID == id {
			return u
		}
	}
	return nil
}

type fixture struct {
	store   *memStore
	cache   *cache.MemoryOrderCache
	sink    *recordingSink
	buffer  *writebuffer.BatchBuffer
	service *Service
	matcher *Matcher
}

var testFees = FeeSchedule{MakerRate: dec("0.001"), TakerRate: dec("0.002")}

func newFixture(t *testing.T, orders ...*model.Order) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(orders...),
		cache: cache.NewMemoryOrderCache(time.Hour),
		sink:  &recordingSink{},
	}
	cfg := writebuffer.DefaultConfig(testPair.String())
	cfg.FlushInterval = time.Hour
	f.buffer = writebuffer.NewBatchBuffer(cfg, f.sink)
	f.service = NewService(f.buffer, WithOrderCache(f.cache))
	source := orderbook.NewCachedOrderSource(f.cache, f.store, nil)
	f.matcher = NewMatcher(testPair, source, f.service, testFees)
	return f
}

func limitOrder(id, user int64, side model.OrderSide, price, qty string, at time.Duration) *model.Order {
	return &model.Order{
		ID:        id,
		UserID:    user,
		Currency:  "USDT",
		Coin:      "BTC",
		Side:      side,
		Type:      model.OrderTypeLimit,
		Price:     dec(price),
		Quantity:  dec(qty),
		Status:    model.OrderStatusPending,
		UpdatedAt: baseTime.Add(at),
	}
}

func marketOrder(id, user int64, side model.OrderSide, qty string, at time.Duration) *model.Order {
	o := limitOrder(id, user, side, "0", qty, at)
	o.Type = model.OrderTypeMarket
	return o
}
