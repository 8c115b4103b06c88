package store

import (
	"time"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/shopspring/decimal"
)

type OrderRecord struct {
	ID             int64             `gorm:"primaryKey;autoIncrement"`
	UserID         int64             `gorm:"not null;index"`
	Currency       string            `gorm:"size:16;not null"`
	Coin           string            `gorm:"size:16;not null"`
	Side           model.OrderSide   `gorm:"size:8;not null"`
	Type           model.OrderType   `gorm:"size:16;not null"`
	Price          decimal.Decimal   `gorm:"type:numeric(36,18);not null;default:0"`
	Quantity       decimal.Decimal   `gorm:"type:numeric(36,18);not null"`
	FilledQuantity decimal.Decimal   `gorm:"type:numeric(36,18);not null;default:0"`
	Status         model.OrderStatus `gorm:"size:20;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (OrderRecord) TableName() string {
	return "orders"
}

func (r *OrderRecord) ToModel() *model.Order {
	return &model.Order{
		ID:             r.ID,
		UserID:         r.UserID,
		Currency:       r.Currency,
		Coin:           r.Coin,
		Side:           r.Side,
		Type:           r.Type,
		Price:          r.Price,
		Quantity:       r.Quantity,
		FilledQuantity: r.FilledQuantity,
		Status:         r.Status,
		UpdatedAt:      r.UpdatedAt,
	}
}

func NewOrderRecord(o *model.Order) *OrderRecord {
	return &OrderRecord{
		ID:             o.ID,
		UserID:         o.UserID,
		Currency:       o.Currency,
		Coin:           o.Coin,
		Side:           o.Side,
		Type:           o.Type,
		Price:          o.Price,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Status:         o.Status,
		UpdatedAt:      o.UpdatedAt,
	}
}

type TradeRecord struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	BuyOrderID   int64           `gorm:"not null;index"`
	SellOrderID  int64           `gorm:"not null;index"`
	BuyerID      int64           `gorm:"not null"`
	SellerID     int64           `gorm:"not null"`
	Currency     string          `gorm:"size:16;not null"`
	Coin         string          `gorm:"size:16;not null"`
	Price        decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Quantity     decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	BuyFee       decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0"`
	SellFee      decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0"`
	IsBuyerMaker bool            `gorm:"not null"`
	CreatedAt    time.Time
}

func (TradeRecord) TableName() string {
	return "trades"
}

func NewTradeRecord(t *model.Trade) *TradeRecord {
	return &TradeRecord{
		BuyOrderID:   t.BuyOrderID,
		SellOrderID:  t.SellOrderID,
		BuyerID:      t.BuyerID,
		SellerID:     t.SellerID,
		Currency:     t.Currency,
		Coin:         t.Coin,
		Price:        t.Price,
		Quantity:     t.Quantity,
		BuyFee:       t.BuyFee,
		SellFee:      t.SellFee,
		IsBuyerMaker: t.IsBuyerMaker,
		CreatedAt:    t.CreatedAt,
	}
}

type BalanceRecord struct {
	UserID           int64           `gorm:"primaryKey;autoIncrement:false"`
	Currency         string          `gorm:"primaryKey;size:16"`
	Balance          decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0"`
	AvailableBalance decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0"`
	UpdatedAt        time.Time
}

func (BalanceRecord) TableName() string {
	return "balances"
}
