package orderbook

import (
	"context"
	"testing"
	"time"

	"github.com/joripage/exchange-core/pkg/model"
)

func TestRemoveOrder(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src, limitOrder(1, model.OrderSideBuy, "100", "10", 0))

	if !ob.RemoveOrder(1) {
		t.Fatalf("expected remove success")
	}
	if ob.HasOrder(1) {
		t.Fatalf("order should be removed from index immediately")
	}
	if _, ok := ob.GetOrder(1); ok {
		t.Fatalf("GetOrder must not find a removed order")
	}

	s := ob.GetStats()
	if s.BuyDepth != 1 || s.PendingDeletes != 1 {
		t.Fatalf("heap entry should remain until it reaches the top, got %+v", s)
	}

	if ob.RemoveOrder(1) {
		t.Errorf("second remove must report unknown order")
	}
	if ob.RemoveOrder(42) {
		t.Errorf("remove of unknown order must return false")
	}
}

func TestRemovedOrderNeverMatches(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src,
		limitOrder(1, model.OrderSideBuy, "110", "1", 0),
		limitOrder(2, model.OrderSideBuy, "100", "1", 0),
		limitOrder(3, model.OrderSideSell, "90", "1", 0),
		limitOrder(4, model.OrderSideSell, "90", "1", time.Second),
	)
	ob.RemoveOrder(1)
	ob.RemoveOrder(3)

	for {
		pair := ob.GetMatchablePair(context.Background())
		if pair == nil {
			break
		}
		if pair.Buy.ID == 1 || pair.Sell.ID == 3 {
			t.Fatalf("removed order returned by match: %+v", pair)
		}
	}

	s := ob.GetStats()
	if s.PendingDeletes != 0 || s.BuyDepth != 0 || s.SellDepth != 0 {
		t.Errorf("tombstones should be discarded once they surface, got %+v", s)
	}
}

func TestBestBidSkipsRemovedTop(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src,
		limitOrder(1, model.OrderSideBuy, "100", "1", 0),
		limitOrder(2, model.OrderSideBuy, "105", "1", 0),
	)
	ob.RemoveOrder(2)

	bid, ok := ob.GetBestBid()
	if !ok || !bid.Equal(dec("100")) {
		t.Fatalf("expected best bid 100 after removing 105, got %s", bid)
	}
	if src.calls != 0 {
		t.Errorf("best bid must not reload orders, got %d calls", src.calls)
	}
}

func TestReAddAfterRemove(t *testing.T) {
	ob, src := newTestBook()
	o := limitOrder(1, model.OrderSideBuy, "100", "1", 0)
	addAll(ob, src, o)
	ob.RemoveOrder(1)

	if !ob.AddOrder(o) {
		t.Fatalf("re-adding a removed order should succeed")
	}
	addAll(ob, src, limitOrder(2, model.OrderSideSell, "100", "1", 0))

	pair := ob.GetMatchablePair(context.Background())
	if pair == nil || pair.Buy.ID != 1 {
		t.Fatalf("re-added order must be matchable, got %+v", pair)
	}
	if s := ob.GetStats(); s.PendingDeletes != 0 || s.BuyDepth != 0 {
		t.Errorf("stale copy should be discarded, got %+v", s)
	}
}

func TestStaleOrderDiscardedOnReload(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src,
		limitOrder(1, model.OrderSideBuy, "110", "1", 0),
		limitOrder(2, model.OrderSideBuy, "100", "1", 0),
		limitOrder(3, model.OrderSideSell, "90", "1", 0),
	)

	// order 1 was canceled elsewhere after it entered the book
	src.orders[1].Status = model.OrderStatusCanceled

	pair := ob.GetMatchablePair(context.Background())
	if pair == nil || pair.Buy.ID != 2 {
		t.Fatalf("expected stale order skipped, got %+v", pair)
	}
	if ob.HasOrder(1) {
		t.Errorf("stale order should be dropped from the index")
	}
}

func TestFilledElsewhereDiscarded(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src,
		limitOrder(1, model.OrderSideSell, "90", "1", 0),
		limitOrder(2, model.OrderSideBuy, "100", "1", 0),
	)
	src.orders[1].FilledQuantity = dec("1")

	if pair := ob.GetMatchablePair(context.Background()); pair != nil {
		t.Fatalf("fully filled order must not match, got %+v", pair)
	}
	if !ob.HasOrder(2) {
		t.Errorf("valid buy should stay in the book")
	}
}

func TestReloadFailureTreatsOrderAsInvalid(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src,
		limitOrder(1, model.OrderSideBuy, "110", "1", 0),
		limitOrder(2, model.OrderSideBuy, "100", "1", 0),
		limitOrder(3, model.OrderSideSell, "90", "1", 0),
	)
	src.fail[1] = true

	pair := ob.GetMatchablePair(context.Background())
	if pair == nil || pair.Buy.ID != 2 {
		t.Fatalf("unverifiable order must be discarded, got %+v", pair)
	}
}

func TestMissingOrderDiscarded(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src,
		limitOrder(1, model.OrderSideBuy, "110", "1", 0),
		limitOrder(3, model.OrderSideSell, "90", "1", 0),
	)
	delete(src.orders, 1)

	if pair := ob.GetMatchablePair(context.Background()); pair != nil {
		t.Fatalf("order missing from the source must not match, got %+v", pair)
	}
	if ob.HasOrder(1) {
		t.Errorf("missing order should leave the index")
	}
}

func TestCanceledContextKeepsEntries(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src,
		limitOrder(1, model.OrderSideBuy, "110", "1", 0),
		limitOrder(2, model.OrderSideSell, "90", "1", 0),
	)
	src.fail[1] = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if pair := ob.GetMatchablePair(ctx); pair != nil {
		t.Fatalf("expected no pair on canceled context")
	}
	if !ob.HasOrder(1) {
		t.Errorf("entry must survive a reload aborted by shutdown")
	}
}

func TestMatchUsesFreshQuantities(t *testing.T) {
	ob, src := newTestBook()
	addAll(ob, src,
		limitOrder(1, model.OrderSideBuy, "100", "10", 0),
		limitOrder(2, model.OrderSideSell, "100", "10", 0),
	)
	src.orders[1].FilledQuantity = dec("7")
	src.orders[1].Status = model.OrderStatusPartiallyFilled

	pair := ob.GetMatchablePair(context.Background())
	if pair == nil {
		t.Fatalf("expected pair")
	}
	if !pair.Buy.Order.Remaining().Equal(dec("3")) {
		t.Errorf("expected fresh remaining 3, got %s", pair.Buy.Order.Remaining())
	}
	if !pair.Buy.FilledQuantity.Equal(dec("7")) {
		t.Errorf("snapshot should be refreshed, got %s", pair.Buy.FilledQuantity)
	}
}

func TestLaggingReloadKeepsBookFills(t *testing.T) {
	ob, src := newTestBook()
	buy := src.put(limitOrder(1, model.OrderSideBuy, "100", "3", 0))
	src.put(limitOrder(2, model.OrderSideSell, "100", "2", 0))

	// the book's copy carries a fill the source has not seen yet
	held := buy.Clone()
	held.FilledQuantity = dec("2")
	held.Status = model.OrderStatusPartiallyFilled
	ob.AddOrder(held)
	ob.AddOrder(src.orders[2].Clone())

	pair := ob.GetMatchablePair(context.Background())
	if pair == nil {
		t.Fatalf("expected pair")
	}
	if !pair.Buy.Order.Remaining().Equal(dec("1")) {
		t.Errorf("expected remaining 1 from the book's fill, got %s", pair.Buy.Order.Remaining())
	}
	if pair.Buy.Order.Status != model.OrderStatusPartiallyFilled {
		t.Errorf("expected book status kept, got %s", pair.Buy.Order.Status)
	}
}

func TestLaggingReloadStillHonoursCancel(t *testing.T) {
	ob, src := newTestBook()
	buy := src.put(limitOrder(1, model.OrderSideBuy, "100", "3", 0))
	src.put(limitOrder(2, model.OrderSideSell, "100", "2", 0))

	held := buy.Clone()
	held.FilledQuantity = dec("2")
	held.Status = model.OrderStatusPartiallyFilled
	ob.AddOrder(held)
	ob.AddOrder(src.orders[2].Clone())
	buy.Status = model.OrderStatusCanceled

	if pair := ob.GetMatchablePair(context.Background()); pair != nil {
		t.Fatalf("canceled order must not match, got %+v", pair)
	}
	if ob.HasOrder(1) {
		t.Errorf("canceled order should leave the index")
	}
}

func TestAddOrderRejectsUnpricedLimit(t *testing.T) {
	ob, src := newTestBook()
	if ob.AddOrder(src.put(limitOrder(1, model.OrderSideBuy, "0", "1", 0))) {
		t.Errorf("limit order without a price must be rejected")
	}
	if !ob.AddOrder(src.put(marketOrder(2, model.OrderSideSell, "1", 0))) {
		t.Errorf("market order needs no price")
	}

	n, err := ob.LoadFromDatabase(context.Background(), loaderFunc(func(context.Context, string, string) ([]*model.Order, error) {
		return []*model.Order{limitOrder(3, model.OrderSideSell, "-1", "1", 0)}, nil
	}))
	if err != nil || n != 0 {
		t.Errorf("expected unpriced order skipped on load, got n=%d err=%v", n, err)
	}
}
