package services

import (
	"context"
	"errors"

	"github.com/campuspay/backend/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/campuspay/backend/internal/services"

// SettlementCoordinator runs a balance-affecting sequence as one atomic
// scope. Either every write made by fn commits or none does. Conflicts are
// reported as ErrConflictRetry and never retried here.
type SettlementCoordinator struct {
	store  repository.Store
	logger *zap.SugaredLogger
	tracer trace.Tracer
}

func NewSettlementCoordinator(store repository.Store, logger *zap.Logger) *SettlementCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementCoordinator{
		store:  store,
		logger: logger.Sugar(),
		tracer: otel.Tracer(tracerName),
	}
}

func (c *SettlementCoordinator) Execute(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Tx) error, attrs ...attribute.KeyValue) error {
	ctx, span := c.tracer.Start(ctx, "settlement."+op, trace.WithAttributes(attrs...))
	defer span.End()

	err := c.store.Atomic(ctx, fn)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	mapped := mapStoreError(err)
	switch {
	case errors.Is(mapped, ErrConflictRetry):
		c.logger.Warnf("[SETTLEMENT] %s aborted on conflict: %v", op, err)
	case errors.Is(mapped, ErrStoreUnavailable):
		c.logger.Errorf("[SETTLEMENT] %s aborted, store fault: %v", op, err)
	default:
		c.logger.Infof("[SETTLEMENT] %s rejected: %v", op, mapped)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, mapped.Error())
	return mapped
}
