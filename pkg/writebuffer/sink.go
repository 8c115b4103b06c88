package writebuffer

import (
	"context"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/joripage/exchange-core/pkg/resilience"
)

// Sink is the backing store a buffer flushes into. Each method is called at
// most once per flush with every pending item of its kind.
type Sink interface {
	UpdateOrders(ctx context.Context, updates []*model.OrderUpdate) error
	InsertTrades(ctx context.Context, trades []*model.Trade) error
	ApplyBalanceDeltas(ctx context.Context, deltas []*model.BalanceDelta) error
}

type resilientSink struct {
	inner     Sink
	breaker   *resilience.CircuitBreaker
	retry     *resilience.RetryPolicy
	retryable []error
}

// NewResilientSink wraps every sink call as breaker(retry(call)). Either
// layer may be nil. retryable narrows which errors are retried; empty means
// all of them.
func NewResilientSink(inner Sink, breaker *resilience.CircuitBreaker, retry *resilience.RetryPolicy, retryable ...error) Sink {
	return &resilientSink{
		inner:     inner,
		breaker:   breaker,
		retry:     retry,
		retryable: retryable,
	}
}

func (s *resilientSink) UpdateOrders(ctx context.Context, updates []*model.OrderUpdate) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.inner.UpdateOrders(ctx, updates)
	})
}

func (s *resilientSink) InsertTrades(ctx context.Context, trades []*model.Trade) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.inner.InsertTrades(ctx, trades)
	})
}

func (s *resilientSink) ApplyBalanceDeltas(ctx context.Context, deltas []*model.BalanceDelta) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.inner.ApplyBalanceDeltas(ctx, deltas)
	})
}

func (s *resilientSink) call(ctx context.Context, fn func(context.Context) error) error {
	attempt := fn
	if s.retry != nil {
		attempt = func(ctx context.Context) error {
			return s.retry.Execute(ctx, fn, s.retryable...)
		}
	}
	if s.breaker != nil {
		return s.breaker.Execute(ctx, attempt)
	}
	return attempt(ctx)
}
