package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderUpdate is the set of mutable order fields waiting to be written.
// Fields left at their zero value are not written.
type OrderUpdate struct {
	OrderID        int64
	Status         OrderStatus
	FilledQuantity decimal.NullDecimal
}

// Merge applies next on top of u. Every field set in next wins.
func (u *OrderUpdate) Merge(next OrderUpdate) {
	if next.Status != "" {
		u.Status = next.Status
	}
	if next.FilledQuantity.Valid {
		u.FilledQuantity = next.FilledQuantity
	}
}

func (u *OrderUpdate) IsEmpty() bool {
	return u.Status == "" && !u.FilledQuantity.Valid
}

// Trade is an append-only execution record.
type Trade struct {
	BuyOrderID   int64
	SellOrderID  int64
	BuyerID      int64
	SellerID     int64
	Currency     string
	Coin         string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	BuyFee       decimal.Decimal
	SellFee      decimal.Decimal
	IsBuyerMaker bool
	CreatedAt    time.Time
}

func (t *Trade) Pair() Pair {
	return Pair{Currency: t.Currency, Coin: t.Coin}
}

// Amount is the quote currency value of the trade before fees.
func (t *Trade) Amount() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

type BalanceKey struct {
	UserID   int64
	Currency string
}

// BalanceDelta holds signed adjustments to a user's balance row.
type BalanceDelta struct {
	UserID           int64
	Currency         string
	Balance          decimal.Decimal
	AvailableBalance decimal.Decimal
}

func (d *BalanceDelta) Key() BalanceKey {
	return BalanceKey{UserID: d.UserID, Currency: d.Currency}
}

// Merge folds next into d. Deltas add up, they never overwrite.
func (d *BalanceDelta) Merge(next BalanceDelta) {
	d.Balance = d.Balance.Add(next.Balance)
	d.AvailableBalance = d.AvailableBalance.Add(next.AvailableBalance)
}

func (d *BalanceDelta) IsZero() bool {
	return d.Balance.IsZero() && d.AvailableBalance.IsZero()
}
