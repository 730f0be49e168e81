package discount

import (
	"context"
	"time"

	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service interface {
	Evaluate(ctx context.Context, storeID, code string, subtotal decimal.Decimal) (*Applied, error)
	Redeem(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) Evaluate(ctx context.Context, storeID, code string, subtotal decimal.Decimal) (*Applied, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Evaluate"),
		zap.String("store_id", storeID),
		zap.String("code", code),
	)

	d, err := s.repo.GetByCode(ctx, storeID, code)
	if err != nil {
		if !IsRejection(err) {
			log.Error("failed to load discount", zap.Error(err))
		}
		return nil, err
	}

	if err := d.Check(subtotal, s.now()); err != nil {
		log.Info("discount rejected", zap.Error(err))
		return nil, err
	}

	return &Applied{Discount: d, Amount: d.AmountFor(subtotal)}, nil
}

// Redeem is a best-effort guard: two checkouts that both passed Evaluate may
// still both land here, and only the increment is conditional.
func (s *service) Redeem(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.IncrementUsage(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUsageLimitReached
	}
	return nil
}
