package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/pkg/kafka"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"github.com/sakashimaa/order-ledger/pkg/outbox/dedup"
	outboxDomain "github.com/sakashimaa/order-ledger/pkg/outbox/domain"
	"go.uber.org/zap"
)

const consumerName = "product-cache-eviction"

type Invalidator interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

// CacheEvictionConsumer drops cached products touched by committed writes so
// no replica keeps serving a stale price or stock.
type CacheEvictionConsumer struct {
	cache  Invalidator
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewCacheEvictionConsumer(cache Invalidator, pool *pgxpool.Pool, logger *zap.Logger) *CacheEvictionConsumer {
	return &CacheEvictionConsumer{
		cache:  cache,
		pool:   pool,
		logger: logger,
	}
}

func (c *CacheEvictionConsumer) Start(ctx context.Context, brokers []string, groupID string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{domain.TopicProductEvents, domain.TopicOrderEvents},
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

func (c *CacheEvictionConsumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Debug(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	var envelope outboxDomain.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		// a poison message is skipped rather than blocking the partition
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return nil
	}

	ids, err := affectedProducts(envelope)
	if err != nil {
		mylogger.Warn(
			ctx,
			c.logger,
			"Error unmarshalling event structure",
			zap.String("event_type", envelope.Event),
			zap.Error(err),
		)

		return nil
	}

	if len(ids) == 0 {
		return nil
	}

	return dedup.ProcessOnce(ctx, c.pool, c.logger, consumerName, envelope.EventID, func(ctx context.Context) error {
		return c.cache.Invalidate(ctx, ids...)
	})
}

// affectedProducts lists the products whose cached copy an event makes stale.
func affectedProducts(envelope outboxDomain.Envelope) ([]int64, error) {
	switch envelope.Event {
	case domain.EventProductPriceChanged:
		var event domain.ProductPriceChangedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Event, err)
		}

		return []int64{event.ProductID}, nil
	case domain.EventProductDeleted:
		var event domain.ProductDeletedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Event, err)
		}

		return []int64{event.ProductID}, nil
	case domain.EventOrderCreated:
		var event domain.OrderCreatedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Event, err)
		}

		ids := make([]int64, 0, len(event.Items))
		for _, item := range event.Items {
			ids = append(ids, item.ProductID)
		}

		return ids, nil
	default:
		return nil, nil
	}
}
