// file: pkg/orderbook/orderbook.go

package orderbook

import (
	"container/heap"
	"context"
	"slices"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MatchedPair is the result of a successful GetMatchablePair. Both entries
// carry freshly reloaded orders.
type MatchedPair struct {
	Buy  *Entry
	Sell *Entry
}

type Stats struct {
	Pair           string
	BuyDepth       int
	SellDepth      int
	IndexedOrders  int
	PendingDeletes int
	TotalOrders    int64
	MatchedPairs   int64
}

// OrderBook holds the resting orders of one trading pair. It is owned by a
// single matching goroutine; callers serialize access.
type OrderBook struct {
	pair model.Pair

	buyHeap  *PriceHeap
	sellHeap *PriceHeap

	// ordersByID is the set of live orders. A heap entry is live only if
	// ordersByID holds that exact entry.
	ordersByID map[int64]*Entry
	// deleted counts heap entries per id that were logically removed and
	// wait to be discarded from the top of their heap.
	deleted map[int64]int

	source OrderSource
	logger *zap.Logger

	seq          uint64
	totalOrders  int64
	matchedPairs int64
}

func NewOrderBook(pair model.Pair, source OrderSource, logger *zap.Logger) *OrderBook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderBook{
		pair:       pair,
		buyHeap:    NewBuyHeap(),
		sellHeap:   NewSellHeap(),
		ordersByID: make(map[int64]*Entry),
		deleted:    make(map[int64]int),
		source:     source,
		logger:     logger.With(zap.String("pair", pair.String())),
	}
}

func (ob *OrderBook) Pair() model.Pair {
	return ob.pair
}

// AddOrder snapshots a matchable order into the book. It is a no-op for
// orders that cannot match, limit orders without a positive price, orders of
// another pair and orders already indexed.
func (ob *OrderBook) AddOrder(order *model.Order) bool {
	if !order.CanMatch() {
		return false
	}
	if !order.Type.IsMarketFamily() && !order.Price.IsPositive() {
		return false
	}
	if !ob.pair.IsZero() && order.Pair() != ob.pair {
		return false
	}
	if _, ok := ob.ordersByID[order.ID]; ok {
		return false
	}

	ob.seq++
	e := newEntry(order, ob.seq)
	ob.ordersByID[order.ID] = e
	heap.Push(ob.sideHeap(order.Side), e)
	ob.totalOrders++

	return true
}

// RemoveOrder drops the order from the index and leaves its heap entry to be
// discarded lazily.
func (ob *OrderBook) RemoveOrder(id int64) bool {
	if _, ok := ob.ordersByID[id]; !ok {
		return false
	}
	delete(ob.ordersByID, id)
	ob.deleted[id]++
	return true
}

func (ob *OrderBook) HasOrder(id int64) bool {
	_, ok := ob.ordersByID[id]
	return ok
}

func (ob *OrderBook) GetOrder(id int64) (*model.Order, bool) {
	e, ok := ob.ordersByID[id]
	if !ok {
		return nil, false
	}
	return e.Order, true
}

// GetMatchablePair returns the best buy and sell entries if they cross, and
// extracts them from the book. Stale or unverifiable tops are discarded on
// the way. When the tops do not cross nothing is extracted.
func (ob *OrderBook) GetMatchablePair(ctx context.Context) *MatchedPair {
	buy := ob.validTop(ctx, ob.buyHeap)
	if buy == nil {
		return nil
	}
	sell := ob.validTop(ctx, ob.sellHeap)
	if sell == nil {
		return nil
	}
	if !canOrdersMatch(buy, sell) {
		return nil
	}

	heap.Pop(ob.buyHeap)
	heap.Pop(ob.sellHeap)
	delete(ob.ordersByID, buy.ID)
	delete(ob.ordersByID, sell.ID)
	ob.matchedPairs++

	return &MatchedPair{Buy: buy, Sell: sell}
}

// Latest merges a reloaded order with the book's copy. Fills only grow, so
// a reload that lags behind the book (fills still waiting in a write buffer)
// keeps the book's fill progress. A closed reload always wins.
func Latest(snapshot, fresh *model.Order) *model.Order {
	if fresh == nil || snapshot == nil {
		return fresh
	}
	if !fresh.CanMatch() || !snapshot.FilledQuantity.GreaterThan(fresh.FilledQuantity) {
		return fresh
	}
	merged := fresh.Clone()
	merged.FilledQuantity = snapshot.FilledQuantity
	merged.Status = snapshot.Status
	return merged
}

func canOrdersMatch(buy, sell *Entry) bool {
	if buy.Type.IsMarketFamily() || sell.Type.IsMarketFamily() {
		return true
	}
	return buy.Price.Cmp(sell.Price) >= 0
}

// validTop returns the top entry of h after reloading its order, discarding
// every entry on the way that is dead or no longer matchable.
func (ob *OrderBook) validTop(ctx context.Context, h *PriceHeap) *Entry {
	for {
		e := ob.liveTop(h)
		if e == nil {
			return nil
		}

		fresh, err := ob.source.GetOrder(ctx, e.ID)
		if err != nil && ctx.Err() != nil {
			// shutting down, keep the entry for the next run
			return nil
		}
		if err == nil {
			fresh = Latest(e.Order, fresh)
		}
		if err != nil || !fresh.CanMatch() {
			ob.logger.Debug("discard unmatchable order",
				zap.Int64("order_id", e.ID), zap.Error(err))
			heap.Pop(h)
			delete(ob.ordersByID, e.ID)
			continue
		}

		e.Order = fresh
		e.Quantity = fresh.Quantity
		e.FilledQuantity = fresh.FilledQuantity
		return e
	}
}

// liveTop discards tombstoned entries from the top of h and returns the
// first live one without touching the order source.
func (ob *OrderBook) liveTop(h *PriceHeap) *Entry {
	for {
		e, ok := h.Peek()
		if !ok {
			return nil
		}
		if cur, ok := ob.ordersByID[e.ID]; ok && cur == e {
			return e
		}
		heap.Pop(h)
		ob.dropTombstone(e.ID)
	}
}

func (ob *OrderBook) dropTombstone(id int64) {
	if n := ob.deleted[id]; n > 1 {
		ob.deleted[id] = n - 1
	} else {
		delete(ob.deleted, id)
	}
}

// GetBestBid returns the highest resting bid price. ok is false if the buy
// side is empty or led by a market order.
func (ob *OrderBook) GetBestBid() (decimal.Decimal, bool) {
	return bestPrice(ob.liveTop(ob.buyHeap))
}

// GetBestAsk returns the lowest resting ask price.
func (ob *OrderBook) GetBestAsk() (decimal.Decimal, bool) {
	return bestPrice(ob.liveTop(ob.sellHeap))
}

func bestPrice(e *Entry) (decimal.Decimal, bool) {
	if e == nil || e.Type.IsMarketFamily() {
		return decimal.Zero, false
	}
	return e.Price, true
}

// GetSpread returns best ask minus best bid.
func (ob *OrderBook) GetSpread() (decimal.Decimal, bool) {
	bid, ok := ob.GetBestBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := ob.GetBestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

func (ob *OrderBook) GetStats() Stats {
	pending := 0
	for _, n := range ob.deleted {
		pending += n
	}
	return Stats{
		Pair:           ob.pair.String(),
		BuyDepth:       ob.buyHeap.Len(),
		SellDepth:      ob.sellHeap.Len(),
		IndexedOrders:  len(ob.ordersByID),
		PendingDeletes: pending,
		TotalOrders:    ob.totalOrders,
		MatchedPairs:   ob.matchedPairs,
	}
}

// Clear resets heaps, index and counters.
func (ob *OrderBook) Clear() {
	ob.buyHeap.reset()
	ob.sellHeap.reset()
	ob.ordersByID = make(map[int64]*Entry)
	ob.deleted = make(map[int64]int)
	ob.seq = 0
	ob.totalOrders = 0
	ob.matchedPairs = 0
}

// LoadFromDatabase adds every resumable order of the pair, oldest update
// first so FIFO order at equal price survives a restart.
func (ob *OrderBook) LoadFromDatabase(ctx context.Context, loader OrderLoader) (int, error) {
	orders, err := loader.LoadResumable(ctx, ob.pair.Currency, ob.pair.Coin)
	if err != nil {
		return 0, err
	}

	slices.SortStableFunc(orders, func(a, b *model.Order) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	loaded := 0
	for _, o := range orders {
		if ob.AddOrder(o) {
			loaded++
		}
	}

	ob.logger.Info("order book loaded",
		zap.Int("loaded", loaded), zap.Int("fetched", len(orders)))
	return loaded, nil
}

func (ob *OrderBook) sideHeap(side model.OrderSide) *PriceHeap {
	if side == model.OrderSideBuy {
		return ob.buyHeap
	}
	return ob.sellHeap
}
