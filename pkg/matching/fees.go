package matching

import (
	"github.com/joripage/exchange-core/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// FeeSchedule holds the maker and taker rates applied to a trade's quote
// amount.
type FeeSchedule struct {
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

func (f FeeSchedule) Fees(cost decimal.Decimal, isBuyerMaker bool) (buyFee, sellFee decimal.Decimal) {
	maker := cost.Mul(f.MakerRate).Round(orderbook.PriceScale)
	taker := cost.Mul(f.TakerRate).Round(orderbook.PriceScale)
	if isBuyerMaker {
		return maker, taker
	}
	return taker, maker
}
