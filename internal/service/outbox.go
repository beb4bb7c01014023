package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	outboxDomain "github.com/sakashimaa/order-ledger/pkg/outbox/domain"
	"github.com/sakashimaa/order-ledger/pkg/outbox/worker"
)

// emitEvent stores an event in the outbox inside tx, so it is published only
// if the surrounding unit of work commits.
func emitEvent(
	ctx context.Context,
	tx pgx.Tx,
	outboxRepo worker.OutboxRepository,
	topic, aggregateType string,
	aggregateID int64,
	eventType string,
	payload any,
) error {
	event, err := outboxDomain.NewEvent(topic, aggregateType, strconv.FormatInt(aggregateID, 10), eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	if err := outboxRepo.SaveOutboxEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save %s event: %w", eventType, err)
	}

	return nil
}
