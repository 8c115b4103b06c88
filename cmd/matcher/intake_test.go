package main

import (
	"context"
	"errors"
	"testing"

	kafkawrapper "github.com/joripage/exchange-core/pkg/kafka_wrapper"
	"github.com/joripage/exchange-core/pkg/matching"
	"github.com/joripage/exchange-core/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeManager struct {
	submitted []int64
	canceled  []int64
	submitErr error
}

func (m *fakeManager) Submit(_ context.Context, order *model.Order) (int, error) {
	m.submitted = append(m.submitted, order.ID)
	return 0, m.submitErr
}

func (m *fakeManager) Cancel(_ context.Context, _ model.Pair, id int64) error {
	m.canceled = append(m.canceled, id)
	return matching.ErrOrderNotInBook
}

type fakeFinder struct {
	orders map[int64]*model.Order
	err    error
}

func (f *fakeFinder) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orders[id], nil
}

func msg(v string) kafkawrapper.Message {
	return kafkawrapper.Message{Value: []byte(v)}
}

func TestCommandHandler(t *testing.T) {
	mgr := &fakeManager{}
	finder := &fakeFinder{orders: map[int64]*model.Order{1: {ID: 1}}}
	h := &commandHandler{mgr: mgr, orders: finder, logger: zap.NewNop()}

	err := h.Handle(context.Background(), []kafkawrapper.Message{
		msg(`{"action":"place","order_id":1,"currency":"USDT","coin":"BTC"}`),
		msg(`{"action":"place","order_id":2,"currency":"USDT","coin":"BTC"}`),
		msg(`{"action":"cancel","order_id":3,"currency":"USDT","coin":"BTC"}`),
		msg(`not json`),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, mgr.submitted)
	assert.Equal(t, []int64{3}, mgr.canceled)
}

func TestCommandHandlerFailsOnStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	h := &commandHandler{
		mgr:    &fakeManager{},
		orders: &fakeFinder{err: storeErr},
		logger: zap.NewNop(),
	}

	err := h.Handle(context.Background(), []kafkawrapper.Message{
		msg(`{"action":"place","order_id":1,"currency":"USDT","coin":"BTC"}`),
	})
	assert.ErrorIs(t, err, storeErr)
}
