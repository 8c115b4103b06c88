package writebuffer

import (
	"context"
	"fmt"
	"time"

	"github.com/joripage/exchange-core/pkg/metrics"
	"github.com/joripage/exchange-core/pkg/model"
	"go.uber.org/zap"
)

type Mode string

const (
	ModeBatch Mode = "batch"
	ModeSync  Mode = "sync"
)

const (
	DefaultMaxBufferSize = 1000
	DefaultFlushInterval = time.Second
	DefaultMaxRetries    = 3
)

// WriteBuffer accumulates order updates, trades and balance deltas and
// writes them to a Sink in batches. Both variants expose the same contract.
type WriteBuffer interface {
	AddOrder(orderID int64, update model.OrderUpdate)
	AddTrade(trade model.Trade)
	AddBalanceUpdate(userID int64, currency string, delta model.BalanceDelta)
	ShouldFlush() bool
	Flush(ctx context.Context) *FlushResult
	Clear()
	Size() int
	Stats() Stats
}

type Config struct {
	Pair          string
	MaxBufferSize int
	FlushInterval time.Duration
	// MaxRetries is reported in stats. Retrying itself belongs to the sink.
	MaxRetries int
	Mode       Mode
}

func DefaultConfig(pair string) Config {
	return Config{
		Pair:          pair,
		MaxBufferSize: DefaultMaxBufferSize,
		FlushInterval: DefaultFlushInterval,
		MaxRetries:    DefaultMaxRetries,
		Mode:          ModeBatch,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = DefaultMaxBufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Mode == "" {
		c.Mode = ModeBatch
	}
}

// TradeListener is invoked with the trades of a flush once they are written.
type TradeListener func(ctx context.Context, trades []*model.Trade)

// OrderListener is invoked with the order updates of a flush once they are
// written.
type OrderListener func(ctx context.Context, updates []*model.OrderUpdate)

type options struct {
	logger   *zap.Logger
	recorder *metrics.Recorder
	onTrades TradeListener
	onOrders OrderListener
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

func WithTradeListener(fn TradeListener) Option {
	return func(o *options) {
		o.onTrades = fn
	}
}

func WithOrderListener(fn OrderListener) Option {
	return func(o *options) {
		o.onOrders = fn
	}
}

// New builds the buffer variant selected by cfg.Mode.
func New(cfg Config, sink Sink, opts ...Option) (WriteBuffer, error) {
	cfg.applyDefaults()
	switch cfg.Mode {
	case ModeBatch:
		return NewBatchBuffer(cfg, sink, opts...), nil
	case ModeSync:
		return NewSyncBuffer(cfg, sink, opts...), nil
	default:
		return nil, fmt.Errorf("unknown write buffer mode %q", cfg.Mode)
	}
}

type BufferStats struct {
	Orders   int `json:"orders"`
	Trades   int `json:"trades"`
	Balances int `json:"balances"`
	Total    int `json:"total"`
}

type ConfigStats struct {
	MaxBufferSize   int   `json:"maxBufferSize"`
	FlushIntervalMs int64 `json:"flushIntervalMs"`
	MaxRetries      int   `json:"maxRetries"`
	Mode            Mode  `json:"mode"`
}

type TotalStats struct {
	Flushes             int64     `json:"flushes"`
	FailedFlushes       int64     `json:"failedFlushes"`
	OrdersWritten       int64     `json:"ordersWritten"`
	TradesWritten       int64     `json:"tradesWritten"`
	BalancesWritten     int64     `json:"balancesWritten"`
	LastFlushAt         time.Time `json:"lastFlushAt"`
	LastFlushDurationMs int64     `json:"lastFlushDurationMs"`
}

type Stats struct {
	Buffer BufferStats `json:"buffer"`
	Config ConfigStats `json:"config"`
	Totals TotalStats  `json:"totals"`
}
