package kafkawrapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/joripage/exchange-core/pkg/model"
	kafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
	Headers   map[string]string
	Raw       kafka.Message
}

type CommandAction string

const (
	ActionPlace  CommandAction = "place"
	ActionCancel CommandAction = "cancel"
)

var ErrInvalidCommand = errors.New("invalid order command")

// OrderCommand asks the matcher to take an order into its book or to drop
// it. The order itself is read from the backing store.
type OrderCommand struct {
	Action   CommandAction `json:"action"`
	OrderID  int64         `json:"order_id"`
	Currency string        `json:"currency"`
	Coin     string        `json:"coin"`
}

func (c *OrderCommand) Pair() model.Pair {
	return model.NewPair(c.Coin, c.Currency)
}

func (c *OrderCommand) Validate() error {
	switch {
	case c.Action != ActionPlace && c.Action != ActionCancel:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	case c.OrderID <= 0:
		return fmt.Errorf("%w: order id %d", ErrInvalidCommand, c.OrderID)
	case c.Currency == "" || c.Coin == "":
		return fmt.Errorf("%w: missing pair", ErrInvalidCommand)
	}
	return nil
}

func DecodeOrderCommand(m Message) (*OrderCommand, error) {
	var cmd OrderCommand
	if err := json.Unmarshal(m.Value, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// TradeEvent is the published form of a persisted trade.
type TradeEvent struct {
	Pair         string          `json:"pair"`
	BuyOrderID   int64           `json:"buy_order_id"`
	SellOrderID  int64           `json:"sell_order_id"`
	BuyerID      int64           `json:"buyer_id"`
	SellerID     int64           `json:"seller_id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	BuyFee       decimal.Decimal `json:"buy_fee"`
	SellFee      decimal.Decimal `json:"sell_fee"`
	IsBuyerMaker bool            `json:"is_buyer_maker"`
	CreatedAt    time.Time       `json:"created_at"`
}

func NewTradeEvent(t *model.Trade) TradeEvent {
	return TradeEvent{
		Pair:         t.Pair().String(),
		BuyOrderID:   t.BuyOrderID,
		SellOrderID:  t.SellOrderID,
		BuyerID:      t.BuyerID,
		SellerID:     t.SellerID,
		Price:        t.Price,
		Quantity:     t.Quantity,
		BuyFee:       t.BuyFee,
		SellFee:      t.SellFee,
		IsBuyerMaker: t.IsBuyerMaker,
		CreatedAt:    t.CreatedAt,
	}
}

func wrapMessage(m kafka.Message) Message {
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
		Headers:   headersToMap(m.Headers),
		Raw:       m,
	}
}

func headersToMap(hs []kafka.Header) map[string]string {
	out := map[string]string{}
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}

// shardFor maps a message key onto one of n workers.
func shardFor(key []byte, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}
