package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/joripage/exchange-core/pkg/cache"
	"github.com/joripage/exchange-core/pkg/logging"
	"github.com/joripage/exchange-core/pkg/matching"
	"github.com/joripage/exchange-core/pkg/model"
	"github.com/joripage/exchange-core/pkg/orderbook"
	"github.com/joripage/exchange-core/pkg/writebuffer"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	minPrice = 100.0
	maxPrice = 200.0
	minQty   = 1
	maxQty   = 100
)

var pair = model.NewPair("ABC", "USDT")

// countingSink stands in for the database.
type countingSink struct {
	orders   atomic.Int64
	trades   atomic.Int64
	balances atomic.Int64
}

func (s *countingSink) UpdateOrders(_ context.Context, u []*model.OrderUpdate) error {
	s.orders.Add(int64(len(u)))
	return nil
}

func (s *countingSink) InsertTrades(_ context.Context, t []*model.Trade) error {
	s.trades.Add(int64(len(t)))
	return nil
}

func (s *countingSink) ApplyBalanceDeltas(_ context.Context, d []*model.BalanceDelta) error {
	s.balances.Add(int64(len(d)))
	return nil
}

// noStore backs the order cache; every order is cached before submission.
type noStore struct{}

func (noStore) FindOrder(context.Context, int64) (*model.Order, error) {
	return nil, nil
}

func randomOrder(r *rand.Rand, id int64, at time.Time) *model.Order {
	side := model.OrderSideBuy
	if r.Intn(2) == 0 {
		side = model.OrderSideSell
	}
	price := minPrice + r.Float64()*(maxPrice-minPrice)
	qty := int64(r.Intn(maxQty-minQty+1) + minQty)

	return &model.Order{
		ID:        id,
		UserID:    1 + r.Int63n(1000),
		Currency:  pair.Currency,
		Coin:      pair.Coin,
		Side:      side,
		Type:      model.OrderTypeLimit,
		Price:     decimal.NewFromFloat(price).Round(2),
		Quantity:  decimal.NewFromInt(qty),
		Status:    model.OrderStatusPending,
		UpdatedAt: at,
	}
}

func main() {
	var numOrders int
	var bufferSize int
	var logLevel string
	flag.IntVar(&numOrders, "orders", 200_000, "Number of orders to submit")
	flag.IntVar(&bufferSize, "buffer-size", writebuffer.DefaultMaxBufferSize, "Write buffer size")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level")
	flag.Parse()

	logger := logging.NewLogger(logging.ParseLevel(logLevel))
	defer logger.Sync() // nolint

	ctx := context.Background()
	sink := &countingSink{}
	orderCache := cache.NewMemoryOrderCache(time.Hour)

	cfg := writebuffer.DefaultConfig(pair.String())
	cfg.MaxBufferSize = bufferSize
	buffer := writebuffer.NewBatchBuffer(cfg, sink, writebuffer.WithLogger(logger.Named("writebuffer")))
	service := matching.NewService(buffer, matching.WithOrderCache(orderCache))
	source := orderbook.NewCachedOrderSource(orderCache, noStore{}, logger.Named("orderbook"))
	matcher := matching.NewMatcher(pair, source, service, matching.FeeSchedule{
		MakerRate: decimal.RequireFromString("0.001"),
		TakerRate: decimal.RequireFromString("0.002"),
	}, matching.WithMatcherLogger(logger.Named("matching")))

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	epoch := time.Now()
	orders := make([]*model.Order, numOrders)
	for i := range orders {
		orders[i] = randomOrder(r, int64(i+1), epoch.Add(time.Duration(i)*time.Microsecond))
	}

	start := time.Now()
	for _, o := range orders {
		_ = orderCache.SetOrder(ctx, o)
		if _, err := matcher.Submit(ctx, o); err != nil {
			logger.Zap().Warn("submit failed", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}
	final := matcher.Flush(ctx)
	elapsed := time.Since(start)

	stats := matcher.Stats()
	fmt.Println("--------")
	fmt.Printf("Total Orders      : %d\n", numOrders)
	fmt.Printf("Total Matches     : %d\n", stats.Service.MatchCount)
	fmt.Printf("Resting Orders    : %d\n", stats.Book.IndexedOrders)
	fmt.Printf("Last Price        : %s\n", stats.LastPrice)
	fmt.Printf("Trades Written    : %d\n", sink.trades.Load())
	fmt.Printf("Order Writes      : %d\n", sink.orders.Load())
	fmt.Printf("Balance Writes    : %d\n", sink.balances.Load())
	fmt.Printf("Flushes           : %d\n", stats.Service.Buffer.Totals.Flushes)
	fmt.Printf("Final Flush OK    : %t\n", final.Success())
	fmt.Printf("Time Taken        : %s\n", elapsed)
	fmt.Printf("Orders/sec        : %.0f\n", float64(numOrders)/elapsed.Seconds())
}
