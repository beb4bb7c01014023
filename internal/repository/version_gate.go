package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// VersionedTable describes a table carrying version and updated_at columns.
// Both fields are compile-time constants owned by this package.
type VersionedTable struct {
	Name      string
	Returning string
}

type Assignment struct {
	Column string
	Value  any
}

// VersionGate applies compare-and-swap writes keyed on (id, version).
type VersionGate struct {
	tracer trace.Tracer
	logger *zap.Logger
}

func NewVersionGate(logger *zap.Logger) *VersionGate {
	return &VersionGate{
		tracer: otel.Tracer("repository/version_gate"),
		logger: logger,
	}
}

// Update writes set and bumps version only if the stored version equals
// expectedVersion. dest receives the RETURNING columns of table. A missing
// row and a stale version both yield ErrVersionConflict.
func (g *VersionGate) Update(
	ctx context.Context,
	tx pgx.Tx,
	table VersionedTable,
	id, expectedVersion int64,
	set []Assignment,
	dest ...any,
) error {
	ctx, span := g.tracer.Start(ctx, "VersionGate.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", table.Name),
		attribute.Int64("id", id),
		attribute.Int64("expected_version", expectedVersion),
	)

	query, args := buildGatedUpdate(table, id, expectedVersion, set)

	err := tx.QueryRow(ctx, query, args...).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(
				ctx,
				g.logger,
				"Version conflict",
				zap.String("table", table.Name),
				zap.Int64("id", id),
				zap.Int64("expected_version", expectedVersion),
			)

			return ErrVersionConflict
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			g.logger,
			"Gated update failed",
			zap.String("table", table.Name),
			zap.Int64("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("gated update of %s %d: %w", table.Name, id, err)
	}

	return nil
}

func buildGatedUpdate(table VersionedTable, id, expectedVersion int64, set []Assignment) (string, []any) {
	updates := make([]string, 0, len(set)+2)
	args := make([]any, 0, len(set)+2)
	argId := 1

	for _, a := range set {
		updates = append(updates, fmt.Sprintf("%s = $%d", a.Column, argId))
		args = append(args, a.Value)
		argId++
	}

	updates = append(updates, "version = version + 1", "updated_at = NOW()")

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d AND version = $%d RETURNING %s",
		table.Name,
		strings.Join(updates, ", "),
		argId,
		argId+1,
		table.Returning,
	)
	args = append(args, id, expectedVersion)

	return query, args
}
