package graph

import (
	"context"
	"errors"
	"fmt"

	"storefront-be/internal/logger"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/admin"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ConnectionTest struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type RefundInput struct {
	StoreID string           `json:"storeId"`
	OrderID string           `json:"orderId"`
	Amount  *decimal.Decimal `json:"amount"`
	Reason  string           `json:"reason"`
}

// PaymentStatus is the resolver for the paymentStatus field.
func (r *queryResolver) PaymentStatus(ctx context.Context, provider string, requestID string) (*admin.PollResult, error) {
	return r.AdminSvc.PollStatus(ctx, payment.ProviderType(provider), requestID)
}

// TestProviderConnection is the resolver for the testProviderConnection field.
func (r *mutationResolver) TestProviderConnection(ctx context.Context, storeID string, provider string) (*ConnectionTest, error) {
	providerType := payment.ProviderType(provider)
	if !providerType.Valid() {
		return nil, payment.ErrUnknownProvider
	}

	err := r.AdminSvc.TestConnection(ctx, storeID, providerType)
	switch {
	case err == nil:
		return &ConnectionTest{Success: true}, nil
	case errors.Is(err, payment.ErrNotConfigured), errors.Is(err, payment.ErrCredentialsRejected):
		// a failed check is a normal answer here
		return &ConnectionTest{Success: false, Error: err.Error()}, nil
	default:
		return nil, err
	}
}

// RefundOrder is the resolver for the refundOrder field. An omitted amount
// refunds the remaining balance.
func (r *mutationResolver) RefundOrder(ctx context.Context, input RefundInput) (*admin.RefundOutcome, error) {
	orderID, err := uuid.Parse(input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid order id", ErrInvalidInput)
	}

	in := admin.RefundInput{StoreID: input.StoreID, OrderID: orderID, Reason: input.Reason}
	if input.Amount != nil {
		if !input.Amount.IsPositive() {
			return nil, admin.ErrInvalidRefundAmount
		}
		in.Amount = *input.Amount
	}

	out, err := r.AdminSvc.Refund(ctx, in)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		logger.FromCtx(ctx).Warn("gateway declined refund",
			zap.String("order_id", orderID.String()),
			zap.String("error_code", out.ErrorCode),
		)
	}
	return out, nil
}
