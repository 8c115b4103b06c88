package writebuffer

import (
	"fmt"
	"time"
)

const (
	KindOrders   = "orders"
	KindTrades   = "trades"
	KindBalances = "balances"
)

// FlushError records the failure of one kind of write within a flush.
type FlushError struct {
	Kind  string
	Count int
	Err   error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush %d %s: %v", e.Count, e.Kind, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// FlushResult is the outcome of one flush. Failures are reported here and
// never returned as an error.
type FlushResult struct {
	FlushID         string
	OrdersWritten   int
	TradesWritten   int
	BalancesWritten int
	Duration        time.Duration
	Errors          []error
}

func (r *FlushResult) Success() bool {
	return len(r.Errors) == 0
}

func (r *FlushResult) TotalWritten() int {
	return r.OrdersWritten + r.TradesWritten + r.BalancesWritten
}

func (r *FlushResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

func (r *FlushResult) written() map[string]int {
	return map[string]int{
		KindOrders:   r.OrdersWritten,
		KindTrades:   r.TradesWritten,
		KindBalances: r.BalancesWritten,
	}
}
