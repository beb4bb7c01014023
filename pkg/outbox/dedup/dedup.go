package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProcessOnce runs action at most once per (consumer, eventID). The marker row
// and the action's success commit together, so a failed action is retried on
// redelivery.
func ProcessOnce(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	consumer string,
	eventID string,
	action func(ctx context.Context) error,
) error {
	span := trace.SpanFromContext(ctx)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(shutdownCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				shutdownCtx,
				logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	query := `
		INSERT INTO processed_events (consumer, event_id)
		VALUES ($1, $2)
	`

	_, err = tx.Exec(ctx, query, consumer, eventID)
	if err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			mylogger.Info(
				ctx,
				logger,
				"Event already processed, skipping",
				zap.String("consumer", consumer),
				zap.String("event_id", eventID),
			)

			return nil
		}

		span.RecordError(err)
		return err
	}

	if err := action(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to process event %s: %w", eventID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return fmt.Errorf("failed to commit processed event: %w", err)
	}

	return nil
}
