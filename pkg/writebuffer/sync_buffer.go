package writebuffer

import (
	"context"
	"sync"

	"github.com/joripage/exchange-core/pkg/model"
)

// SyncBuffer writes through on every add. It shares BatchBuffer's merge and
// re-queue rules, so a failed write is retried by the next add or Flush.
type SyncBuffer struct {
	*BatchBuffer

	mu   sync.Mutex
	last *FlushResult
}

var _ WriteBuffer = (*SyncBuffer)(nil)

func NewSyncBuffer(cfg Config, sink Sink, opts ...Option) *SyncBuffer {
	cfg.Mode = ModeSync
	return &SyncBuffer{BatchBuffer: NewBatchBuffer(cfg, sink, opts...)}
}

func (s *SyncBuffer) AddOrder(orderID int64, update model.OrderUpdate) {
	s.BatchBuffer.AddOrder(orderID, update)
	s.flushNow()
}

func (s *SyncBuffer) AddTrade(trade model.Trade) {
	s.BatchBuffer.AddTrade(trade)
	s.flushNow()
}

func (s *SyncBuffer) AddBalanceUpdate(userID int64, currency string, delta model.BalanceDelta) {
	s.BatchBuffer.AddBalanceUpdate(userID, currency, delta)
	s.flushNow()
}

// ShouldFlush only reports leftovers from a failed write.
func (s *SyncBuffer) ShouldFlush() bool {
	return s.Size() > 0
}

func (s *SyncBuffer) Flush(ctx context.Context) *FlushResult {
	result := s.BatchBuffer.Flush(ctx)
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	return result
}

// LastResult returns the outcome of the most recent write, or nil.
func (s *SyncBuffer) LastResult() *FlushResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *SyncBuffer) flushNow() {
	s.Flush(context.Background())
}
