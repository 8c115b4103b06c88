package orderbook

import (
	"container/heap"
	"math/rand"
	"testing"
	"time"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/shopspring/decimal"
)

func randomEntries(r *rand.Rand, n int, side model.OrderSide) []*Entry {
	entries := make([]*Entry, 0, n)
	for i := 0; i < n; i++ {
		// few distinct prices and timestamps so ties are common
		price := decimal.New(int64(r.Intn(20)+100), 0).Add(decimal.New(int64(r.Intn(3)), -8))
		o := &model.Order{
			ID:        int64(i + 1),
			Side:      side,
			Type:      model.OrderTypeLimit,
			Price:     price,
			Quantity:  decimal.NewFromInt(1),
			Status:    model.OrderStatusPending,
			UpdatedAt: baseTime.Add(time.Duration(r.Intn(5)) * time.Second),
		}
		entries = append(entries, newEntry(o, uint64(i+1)))
	}
	return entries
}

func TestBuyHeapPriorityInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	h := NewBuyHeap()
	for _, e := range randomEntries(r, 500, model.OrderSideBuy) {
		heap.Push(h, e)
	}

	prev := heap.Pop(h).(*Entry)
	for h.Len() > 0 {
		cur := heap.Pop(h).(*Entry)
		c := cur.Price.Cmp(prev.Price)
		if c > 0 {
			t.Fatalf("price increased: %s after %s", cur.Price, prev.Price)
		}
		if c == 0 && cur.Timestamp.Before(prev.Timestamp) {
			t.Fatalf("timestamp decreased at price %s", cur.Price)
		}
		prev = cur
	}
}

func TestSellHeapPriorityInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	h := NewSellHeap()
	for _, e := range randomEntries(r, 500, model.OrderSideSell) {
		heap.Push(h, e)
	}

	prev := heap.Pop(h).(*Entry)
	for h.Len() > 0 {
		cur := heap.Pop(h).(*Entry)
		c := cur.Price.Cmp(prev.Price)
		if c < 0 {
			t.Fatalf("price decreased: %s after %s", cur.Price, prev.Price)
		}
		if c == 0 && cur.Timestamp.Before(prev.Timestamp) {
			t.Fatalf("timestamp decreased at price %s", cur.Price)
		}
		prev = cur
	}
}

func TestHeapPeek(t *testing.T) {
	h := NewSellHeap()
	if _, ok := h.Peek(); ok {
		t.Fatalf("peek on empty heap must fail")
	}

	heap.Push(h, newEntry(&model.Order{ID: 1, Price: decimal.NewFromInt(5), Type: model.OrderTypeLimit}, 1))
	heap.Push(h, newEntry(&model.Order{ID: 2, Price: decimal.NewFromInt(3), Type: model.OrderTypeLimit}, 2))

	top, ok := h.Peek()
	if !ok || top.ID != 2 {
		t.Fatalf("expected lowest ask on top, got %+v", top)
	}
	if h.Len() != 2 {
		t.Errorf("peek must not remove, len=%d", h.Len())
	}
}

func TestEqualTimestampKeepsArrivalOrder(t *testing.T) {
	h := NewBuyHeap()
	for i := 1; i <= 5; i++ {
		heap.Push(h, newEntry(&model.Order{ID: int64(i), Price: decimal.NewFromInt(1), Type: model.OrderTypeLimit, UpdatedAt: baseTime}, uint64(i)))
	}
	for i := 1; i <= 5; i++ {
		if e := heap.Pop(h).(*Entry); e.ID != int64(i) {
			t.Fatalf("expected id %d, got %d", i, e.ID)
		}
	}
}
