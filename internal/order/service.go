package order

import (
	"context"

	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns the financial-status moves that follow a gateway outcome.
// Every move is conditional, so replays return false without touching rows.
type Service interface {
	MarkAsPaid(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAsFailed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAsCancelled(ctx context.Context, id uuid.UUID) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, full bool) (bool, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) MarkAsPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.transition(ctx, id, []FinancialStatus{FinancialPending}, FinancialPaid)
}

func (s *service) MarkAsFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.transition(ctx, id, []FinancialStatus{FinancialPending}, FinancialFailed)
}

func (s *service) MarkAsCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.transition(ctx, id, []FinancialStatus{FinancialPending}, FinancialCancelled)
}

func (s *service) MarkRefunded(ctx context.Context, id uuid.UUID, full bool) (bool, error) {
	from := []FinancialStatus{FinancialPaid, FinancialPartiallyRefunded}
	if full {
		return s.transition(ctx, id, from, FinancialRefunded)
	}
	return s.transition(ctx, id, []FinancialStatus{FinancialPaid}, FinancialPartiallyRefunded)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, from []FinancialStatus, to FinancialStatus) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("order_id", id.String()),
		zap.String("to", string(to)),
	)

	moved, err := s.repo.TransitionFinancialStatus(ctx, id, from, to)
	if err != nil {
		log.Error("failed to update financial status", zap.Error(err))
		return false, err
	}
	if !moved {
		log.Info("financial status unchanged")
		return false, nil
	}

	log.Info("financial status updated")
	return true, nil
}
