package writebuffer

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/joripage/exchange-core/pkg/logging"
	"github.com/joripage/exchange-core/pkg/metrics"
	"github.com/joripage/exchange-core/pkg/model"
	"go.uber.org/zap"
)

// BatchBuffer collects writes in memory and flushes them when asked, or on
// its own when Run is active.
type BatchBuffer struct {
	cfg      Config
	sink     Sink
	logger   *zap.Logger
	recorder *metrics.Recorder
	onTrades TradeListener
	onOrders OrderListener

	mu        sync.Mutex
	orders    map[int64]*model.OrderUpdate
	trades    *deque.Deque[*model.Trade]
	balances  map[model.BalanceKey]*model.BalanceDelta
	lastFlush time.Time
	totals    TotalStats

	// flushMu keeps flushes from interleaving; adds only take mu.
	flushMu sync.Mutex
	kick    chan struct{}
	now     func() time.Time
}

var _ WriteBuffer = (*BatchBuffer)(nil)

func NewBatchBuffer(cfg Config, sink Sink, opts ...Option) *BatchBuffer {
	cfg.applyDefaults()
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	b := &BatchBuffer{
		cfg:      cfg,
		sink:     sink,
		logger:   o.logger.With(zap.String("pair", cfg.Pair)),
		recorder: o.recorder,
		onTrades: o.onTrades,
		onOrders: o.onOrders,
		orders:   make(map[int64]*model.OrderUpdate),
		trades:   &deque.Deque[*model.Trade]{},
		balances: make(map[model.BalanceKey]*model.BalanceDelta),
		kick:     make(chan struct{}, 1),
		now:      time.Now,
	}
	b.lastFlush = b.now()
	return b
}

func (b *BatchBuffer) AddOrder(orderID int64, update model.OrderUpdate) {
	update.OrderID = orderID
	b.mu.Lock()
	if cur, ok := b.orders[orderID]; ok {
		cur.Merge(update)
	} else {
		b.orders[orderID] = &update
	}
	b.afterAddLocked()
	b.mu.Unlock()
}

func (b *BatchBuffer) AddTrade(trade model.Trade) {
	b.mu.Lock()
	b.trades.PushBack(&trade)
	b.afterAddLocked()
	b.mu.Unlock()
}

func (b *BatchBuffer) AddBalanceUpdate(userID int64, currency string, delta model.BalanceDelta) {
	delta.UserID = userID
	delta.Currency = currency
	key := delta.Key()
	b.mu.Lock()
	if cur, ok := b.balances[key]; ok {
		cur.Merge(delta)
	} else {
		b.balances[key] = &delta
	}
	b.afterAddLocked()
	b.mu.Unlock()
}

func (b *BatchBuffer) afterAddLocked() {
	if b.sizeLocked() < b.cfg.MaxBufferSize {
		return
	}
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func (b *BatchBuffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	size := b.sizeLocked()
	if size == 0 {
		return false
	}
	if size >= b.cfg.MaxBufferSize {
		return true
	}
	return b.now().Sub(b.lastFlush) >= b.cfg.FlushInterval
}

// Flush writes everything pending. The pending containers are swapped out
// under the lock, so adds made during the write land in the next batch.
// Kinds that fail to write are put back and retried on the next flush.
func (b *BatchBuffer) Flush(ctx context.Context) *FlushResult {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if b.sizeLocked() == 0 {
		b.mu.Unlock()
		return &FlushResult{}
	}
	orders, trades, balances := b.orders, b.trades, b.balances
	b.orders = make(map[int64]*model.OrderUpdate)
	b.trades = &deque.Deque[*model.Trade]{}
	b.balances = make(map[model.BalanceKey]*model.BalanceDelta)
	b.mu.Unlock()

	ctx, flushID := logging.NewRequestContext(ctx)
	logger := logging.ForContext(ctx, b.logger)
	start := b.now()
	result := &FlushResult{FlushID: flushID}

	var failedOrders []*model.OrderUpdate
	if len(orders) > 0 {
		updates := make([]*model.OrderUpdate, 0, len(orders))
		for _, u := range orders {
			updates = append(updates, u)
		}
		if err := b.sink.UpdateOrders(ctx, updates); err != nil {
			result.Errors = append(result.Errors, &FlushError{Kind: KindOrders, Count: len(updates), Err: err})
			failedOrders = updates
		} else {
			result.OrdersWritten = len(updates)
			if b.onOrders != nil {
				b.onOrders(ctx, updates)
			}
		}
	}

	var failedTrades []*model.Trade
	if trades.Len() > 0 {
		batch := make([]*model.Trade, 0, trades.Len())
		for i := 0; i < trades.Len(); i++ {
			batch = append(batch, trades.At(i))
		}
		if err := b.sink.InsertTrades(ctx, batch); err != nil {
			result.Errors = append(result.Errors, &FlushError{Kind: KindTrades, Count: len(batch), Err: err})
			failedTrades = batch
		} else {
			result.TradesWritten = len(batch)
			if b.onTrades != nil {
				b.onTrades(ctx, batch)
			}
		}
	}

	var failedBalances []*model.BalanceDelta
	if len(balances) > 0 {
		deltas := make([]*model.BalanceDelta, 0, len(balances))
		for _, d := range balances {
			if d.IsZero() {
				continue
			}
			deltas = append(deltas, d)
		}
		if len(deltas) > 0 {
			if err := b.sink.ApplyBalanceDeltas(ctx, deltas); err != nil {
				result.Errors = append(result.Errors, &FlushError{Kind: KindBalances, Count: len(deltas), Err: err})
				failedBalances = deltas
			} else {
				result.BalancesWritten = len(deltas)
			}
		}
	}

	result.Duration = b.now().Sub(start)

	b.mu.Lock()
	b.requeueLocked(failedOrders, failedTrades, failedBalances)
	b.lastFlush = b.now()
	b.totals.Flushes++
	if !result.Success() {
		b.totals.FailedFlushes++
	}
	b.totals.OrdersWritten += int64(result.OrdersWritten)
	b.totals.TradesWritten += int64(result.TradesWritten)
	b.totals.BalancesWritten += int64(result.BalancesWritten)
	b.totals.LastFlushAt = b.lastFlush
	b.totals.LastFlushDurationMs = result.DurationMs()
	size := b.sizeLocked()
	b.mu.Unlock()

	b.recorder.Flush(b.cfg.Pair, result.Success(), result.Duration, result.written())
	b.recorder.BufferedItems(b.cfg.Pair, size)

	if result.Success() {
		logger.Debug("flushed write buffer",
			zap.Int("orders", result.OrdersWritten),
			zap.Int("trades", result.TradesWritten),
			zap.Int("balances", result.BalancesWritten),
			zap.Int64("duration_ms", result.DurationMs()))
	} else {
		logger.Warn("write buffer flush incomplete",
			zap.Int("written", result.TotalWritten()),
			zap.Int("requeued", size),
			zap.Errors("errors", result.Errors))
	}
	return result
}

// requeueLocked merges a failed batch back under whatever arrived during the
// flush. Newer order fields win, older trades stay ahead and balance deltas
// add up.
func (b *BatchBuffer) requeueLocked(orders []*model.OrderUpdate, trades []*model.Trade, balances []*model.BalanceDelta) {
	for _, old := range orders {
		if newer, ok := b.orders[old.OrderID]; ok {
			old.Merge(*newer)
		}
		b.orders[old.OrderID] = old
	}
	for i := len(trades) - 1; i >= 0; i-- {
		b.trades.PushFront(trades[i])
	}
	for _, old := range balances {
		if newer, ok := b.balances[old.Key()]; ok {
			old.Merge(*newer)
		}
		b.balances[old.Key()] = old
	}
}

func (b *BatchBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = make(map[int64]*model.OrderUpdate)
	b.trades.Clear()
	b.balances = make(map[model.BalanceKey]*model.BalanceDelta)
}

func (b *BatchBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sizeLocked()
}

func (b *BatchBuffer) sizeLocked() int {
	return len(b.orders) + b.trades.Len() + len(b.balances)
}

func (b *BatchBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := BufferStats{
		Orders:   len(b.orders),
		Trades:   b.trades.Len(),
		Balances: len(b.balances),
	}
	buf.Total = buf.Orders + buf.Trades + buf.Balances
	return Stats{
		Buffer: buf,
		Config: ConfigStats{
			MaxBufferSize:   b.cfg.MaxBufferSize,
			FlushIntervalMs: b.cfg.FlushInterval.Milliseconds(),
			MaxRetries:      b.cfg.MaxRetries,
			Mode:            b.cfg.Mode,
		},
		Totals: b.totals,
	}
}

// Run flushes whenever the interval elapses or the buffer fills up, until
// ctx is done. A last flush runs on the way out.
func (b *BatchBuffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	b.logger.Info("write buffer flush loop started",
		zap.Int("max_buffer_size", b.cfg.MaxBufferSize),
		zap.Duration("flush_interval", b.cfg.FlushInterval))

	for {
		select {
		case <-ctx.Done():
			result := b.Flush(context.WithoutCancel(ctx))
			b.logger.Info("write buffer flush loop stopped",
				zap.Bool("final_flush_ok", result.Success()),
				zap.Int("pending", b.Size()))
			return
		case <-ticker.C:
			if b.ShouldFlush() {
				b.Flush(ctx)
			}
		case <-b.kick:
			b.Flush(ctx)
		}
	}
}
