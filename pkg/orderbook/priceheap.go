package orderbook

import (
	"time"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits prices are compared at.
const PriceScale int32 = 8

// Entry is the heap-resident snapshot of an order. Only the comparison
// fields are trusted by the heap; Order is refreshed before a match is
// finalized.
type Entry struct {
	ID             int64
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Side           model.OrderSide
	Type           model.OrderType
	Timestamp      time.Time
	Order          *model.Order

	seq uint64
}

func newEntry(order *model.Order, seq uint64) *Entry {
	return &Entry{
		ID:             order.ID,
		Price:          order.Price.Round(PriceScale),
		Quantity:       order.Quantity,
		FilledQuantity: order.FilledQuantity,
		Side:           order.Side,
		Type:           order.Type,
		Timestamp:      order.UpdatedAt,
		Order:          order,
		seq:            seq,
	}
}

// PriceHeap implements heap.Interface
type PriceHeap struct {
	entries []*Entry
	less    func(a, b *Entry) bool
}

func NewPriceHeap(less func(a, b *Entry) bool) *PriceHeap {
	return &PriceHeap{
		entries: []*Entry{},
		less:    less,
	}
}

// NewBuyHeap orders entries by highest price, then earliest timestamp.
func NewBuyHeap() *PriceHeap {
	return NewPriceHeap(func(a, b *Entry) bool {
		return higherPriority(a, b, 1)
	})
}

// NewSellHeap orders entries by lowest price, then earliest timestamp.
func NewSellHeap() *PriceHeap {
	return NewPriceHeap(func(a, b *Entry) bool {
		return higherPriority(a, b, -1)
	})
}

// higherPriority reports whether a ranks before b. better is the sign of
// a.Price.Cmp(b.Price) that wins: 1 for bids, -1 for asks. Market family
// entries have no price and outrank every limit entry.
func higherPriority(a, b *Entry, better int) bool {
	am, bm := a.Type.IsMarketFamily(), b.Type.IsMarketFamily()
	if am != bm {
		return am
	}
	if !am {
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c == better
		}
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.seq < b.seq
}

func (h PriceHeap) Len() int {
	return len(h.entries)
}

func (h PriceHeap) Less(i, j int) bool {
	return h.less(h.entries[i], h.entries[j])
}

func (h PriceHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *PriceHeap) Push(x any) {
	h.entries = append(h.entries, x.(*Entry))
}

func (h *PriceHeap) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries[n-1] = nil
	h.entries = h.entries[:n-1]
	return e
}

func (h *PriceHeap) Peek() (*Entry, bool) {
	if len(h.entries) == 0 {
		return nil, false
	}
	return h.entries[0], true
}

func (h *PriceHeap) reset() {
	h.entries = []*Entry{}
}
