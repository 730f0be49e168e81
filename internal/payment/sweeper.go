package payment

import (
	"context"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
)

// Expirer is the slice of Repository the sweeper needs.
type Expirer interface {
	ExpireStalePendingPayments(ctx context.Context, now time.Time) (int64, error)
}

// SweepOnce expires every pending payment whose abandonment window passed.
func SweepOnce(ctx context.Context, repo Expirer, now time.Time) (int64, error) {
	n, err := repo.ExpireStalePendingPayments(ctx, now)
	if err != nil {
		logger.FromCtx(ctx).Error("expiry sweep failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		metrics.ExpiredPendingPayments.Add(float64(n))
		logger.FromCtx(ctx).Info("expired pending payments", zap.Int64("count", n))
	}
	return n, nil
}

// RunExpirySweeper sweeps every interval until ctx is cancelled.
func RunExpirySweeper(ctx context.Context, repo Expirer, interval time.Duration) {
	ctx = utils.WithInternalRequest(logger.WithFields(ctx, zap.String("layer", "sweeper")))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_, _ = SweepOnce(ctx, repo, now)
		}
	}
}
