package main

import (
	"context"
	"errors"
	"fmt"

	kafkawrapper "github.com/joripage/exchange-core/pkg/kafka_wrapper"
	"github.com/joripage/exchange-core/pkg/logging"
	"github.com/joripage/exchange-core/pkg/matching"
	"github.com/joripage/exchange-core/pkg/model"
	"github.com/joripage/exchange-core/pkg/orderbook"
	"go.uber.org/zap"
)

type commandManager interface {
	Submit(ctx context.Context, order *model.Order) (int, error)
	Cancel(ctx context.Context, pair model.Pair, id int64) error
}

// commandHandler applies order commands from kafka. Bad commands are logged
// and skipped; only store failures fail the batch so it gets retried.
// Orders are read through the order cache, which holds fills the store may
// not have yet.
type commandHandler struct {
	mgr    commandManager
	orders orderbook.OrderSource
	logger *zap.Logger
}

func (h *commandHandler) Handle(ctx context.Context, msgs []kafkawrapper.Message) error {
	logger := logging.ForContext(ctx, h.logger)
	for _, m := range msgs {
		cmd, err := kafkawrapper.DecodeOrderCommand(m)
		if err != nil {
			logger.Warn("skip order command", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if err := h.apply(ctx, cmd); err != nil {
			if errors.Is(err, matching.ErrInvalidFill) {
				logger.Error("order command left a pair that cannot trade",
					zap.Int64("order_id", cmd.OrderID), zap.Error(err))
				continue
			}
			if isSkippable(err) {
				logger.Info("order command ignored",
					zap.String("action", string(cmd.Action)), zap.Int64("order_id", cmd.OrderID), zap.Error(err))
				continue
			}
			return err
		}
	}
	return nil
}

func (h *commandHandler) apply(ctx context.Context, cmd *kafkawrapper.OrderCommand) error {
	switch cmd.Action {
	case kafkawrapper.ActionCancel:
		return h.mgr.Cancel(ctx, cmd.Pair(), cmd.OrderID)
	default:
		order, err := h.orders.GetOrder(ctx, cmd.OrderID)
		if err != nil {
			return fmt.Errorf("load order %d: %w", cmd.OrderID, err)
		}
		if order == nil {
			return fmt.Errorf("%w: order %d not found", matching.ErrOrderRejected, cmd.OrderID)
		}
		_, err = h.mgr.Submit(ctx, order)
		return err
	}
}

func isSkippable(err error) bool {
	return errors.Is(err, matching.ErrOrderRejected) ||
		errors.Is(err, matching.ErrOrderNotInBook) ||
		errors.Is(err, matching.ErrOrderClosed) ||
		errors.Is(err, matching.ErrUnknownPair)
}
