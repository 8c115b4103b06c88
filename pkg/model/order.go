package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// IsMarketFamily reports whether orders of this type carry no limit price
// and match regardless of the counterparty's price.
func (t OrderType) IsMarketFamily() bool {
	return t == OrderTypeMarket || t == OrderTypeStopMarket
}

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusExecuting       OrderStatus = "EXECUTING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// ResumableStatuses are the statuses an order may rest in the book with.
var ResumableStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusExecuting,
	OrderStatusPartiallyFilled,
}

type Order struct {
	ID     int64
	UserID int64

	// pair
	Currency string
	Coin     string

	Side     OrderSide
	Type     OrderType
	Price    decimal.Decimal
	Quantity decimal.Decimal

	// calculated info
	FilledQuantity decimal.Decimal
	Status         OrderStatus
	UpdatedAt      time.Time
}

func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// CanMatch is the authoritative matchability check. It must be evaluated
// against a freshly loaded order, never against a cached snapshot.
func (o *Order) CanMatch() bool {
	if o == nil {
		return false
	}
	switch o.Status {
	case OrderStatusPending, OrderStatusExecuting, OrderStatusPartiallyFilled:
		return o.Remaining().IsPositive()
	}
	return false
}

func (o *Order) Pair() Pair {
	return Pair{Currency: o.Currency, Coin: o.Coin}
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
