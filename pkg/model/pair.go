package model

import (
	"fmt"
	"strings"
)

// Pair identifies a trading pair. Currency is the quote side (USDT in
// BTC/USDT), Coin is the base side.
type Pair struct {
	Currency string `yaml:"currency" json:"currency"`
	Coin     string `yaml:"coin" json:"coin"`
}

func NewPair(coin, currency string) Pair {
	return Pair{
		Currency: strings.ToUpper(currency),
		Coin:     strings.ToUpper(coin),
	}
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Coin, p.Currency)
}

func (p Pair) IsZero() bool {
	return p.Currency == "" || p.Coin == ""
}
