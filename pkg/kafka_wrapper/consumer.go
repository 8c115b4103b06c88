package kafkawrapper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joripage/exchange-core/pkg/logging"
	"github.com/joripage/exchange-core/pkg/resilience"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	// WorkerCount handlers run in parallel. Messages with the same key always
	// go to the same worker, in offset order.
	WorkerCount int
	MaxRetries  int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	// Batch options
	BatchSize    int           // max messages per batch
	BatchTimeout time.Duration // max time a partial batch waits

	Logger *zap.Logger
}

type ConsumerGroup struct {
	r          *kafka.Reader
	cfg        ConsumerConfig
	retry      *resilience.RetryPolicy
	prodForDLQ *Producer
	logger     *zap.Logger
}

// Handler processes one batch. A returned error triggers a retry of the
// whole batch; once retries run out the batch goes to the DLQ.
type Handler func(context.Context, []Message) error

func NewConsumerGroup(cfg ConsumerConfig) (*ConsumerGroup, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("consumer needs brokers and a topic")
	}
	if cfg.DLQTopic == "" {
		return nil, errors.New("consumer needs a dlq topic for batches that run out of retries")
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffMin == 0 {
		cfg.BackoffMin = 100 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.With(zap.String("topic", cfg.Topic), zap.String("group", cfg.GroupID))

	rd := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})

	prod := NewProducer(ProducerConfig{Brokers: cfg.Brokers})

	retry := resilience.NewRetryPolicy(resilience.RetryConfig{
		Name:       "kafka:" + cfg.Topic,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BackoffMin,
		MaxDelay:   cfg.BackoffMax,
		Jitter:     0.1,
		Logger:     logger,
	})

	return &ConsumerGroup{r: rd, cfg: cfg, retry: retry, prodForDLQ: prod, logger: logger}, nil
}

func (cg *ConsumerGroup) Close() error {
	if cg == nil {
		return nil
	}
	if cg.prodForDLQ != nil {
		_ = cg.prodForDLQ.Close()
	}
	if cg.r != nil {
		return cg.r.Close()
	}
	return nil
}

// Run consumes until ctx is done. Offsets are committed once a batch is
// handled or dead-lettered.
func (cg *ConsumerGroup) Run(ctx context.Context, handler Handler) error {
	if cg == nil || cg.r == nil {
		return errors.New("consumer not initialized")
	}

	queues := make([]chan []kafka.Message, cg.cfg.WorkerCount)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan []kafka.Message, 1)
		wg.Add(1)
		go func(q <-chan []kafka.Message) {
			defer wg.Done()
			for ms := range q {
				cg.handle(ctx, handler, ms)
			}
		}(queues[i])
	}

	cg.fetchLoop(ctx, queues)
	for _, q := range queues {
		close(q)
	}
	wg.Wait()
	return nil
}

func (cg *ConsumerGroup) fetchLoop(ctx context.Context, queues []chan []kafka.Message) {
	var buf []kafka.Message
	dispatch := func() {
		if len(buf) == 0 {
			return
		}
		shards := make([][]kafka.Message, len(queues))
		for _, m := range buf {
			i := shardFor(m.Key, len(queues))
			shards[i] = append(shards[i], m)
		}
		for i, ms := range shards {
			if len(ms) == 0 {
				continue
			}
			select {
			case queues[i] <- ms:
			case <-ctx.Done():
			}
		}
		buf = nil
	}

	var deadline time.Time
	for {
		fetchCtx, cancel := ctx, context.CancelFunc(func() {})
		if len(buf) > 0 {
			fetchCtx, cancel = context.WithDeadline(ctx, deadline)
		}
		m, err := cg.r.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				dispatch()
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				dispatch()
				continue
			}
			cg.logger.Warn("kafka fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		if len(buf) == 0 {
			deadline = time.Now().Add(cg.cfg.BatchTimeout)
		}
		buf = append(buf, m)
		if len(buf) >= cg.cfg.BatchSize {
			dispatch()
		}
	}
}

func (cg *ConsumerGroup) handle(ctx context.Context, handler Handler, ms []kafka.Message) {
	wrapped := make([]Message, len(ms))
	for i, m := range ms {
		wrapped[i] = wrapMessage(m)
	}

	bctx, batchID := logging.NewRequestContext(ctx)
	logger := logging.ForContext(bctx, cg.logger)

	err := cg.retry.Execute(bctx, func(ctx context.Context) error {
		return handler(ctx, wrapped)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; leave the batch uncommitted for redelivery.
			return
		}
		logger.Error("kafka batch failed", zap.Int("messages", len(ms)), zap.Error(err))
		if err := cg.deadLetter(bctx, ms, batchID); err != nil {
			// uncommitted, the group redelivers it after a rebalance or restart
			logger.Error("kafka batch not committed", zap.Int("messages", len(ms)), zap.Error(err))
			return
		}
	}

	if err := cg.r.CommitMessages(context.WithoutCancel(ctx), ms...); err != nil {
		logger.Warn("kafka commit failed", zap.Error(err))
	}
}

func (cg *ConsumerGroup) deadLetter(ctx context.Context, ms []kafka.Message, batchID string) error {
	if cg.prodForDLQ == nil {
		return errors.New("no dlq producer")
	}
	for _, m := range ms {
		headers := headersToMap(m.Headers)
		headers["x-batch-id"] = batchID
		if err := cg.prodForDLQ.Publish(ctx, cg.cfg.DLQTopic, m.Key, m.Value, headers); err != nil {
			return fmt.Errorf("dlq publish offset %d: %w", m.Offset, err)
		}
	}
	return nil
}
