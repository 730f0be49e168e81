// Package admin holds the operator-facing payment operations: credential
// checks, gateway status polls and refunds.
package admin

import (
	"context"
	"errors"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/webhook"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProviderResolver interface {
	GetConfiguredProvider(ctx context.Context, storeID string, hint payment.ProviderType) (payment.Provider, error)
}

type Ledger interface {
	GetPendingPaymentByRequestID(ctx context.Context, provider payment.ProviderType, requestID string) (*payment.PendingPayment, error)
	CreateTransaction(ctx context.Context, t *payment.Transaction) error
	GetChargeTransaction(ctx context.Context, orderID uuid.UUID) (*payment.Transaction, error)
	ReserveRefund(ctx context.Context, chargeID int64, refund *payment.Transaction) (decimal.Decimal, error)
	SettleRefund(
		ctx context.Context,
		refundID int64,
		status payment.TransactionStatus,
		providerTransactionID string,
		amount decimal.Decimal,
		metadata map[string]any,
	) error
}

type Orders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

type RefundMarker interface {
	MarkRefunded(ctx context.Context, id uuid.UUID, full bool) (bool, error)
}

// Applier feeds a polled status through the same path as a webhook.
type Applier interface {
	Apply(ctx context.Context, storeID string, p payment.Provider, cb payment.ParsedCallback, source string) (*webhook.Outcome, error)
}

type Deps struct {
	Providers ProviderResolver
	Ledger    Ledger
	Orders    Orders
	Refunds   RefundMarker
	Finalizer Applier
}

type PollResult struct {
	Status         payment.TransactionStatus `json:"status"`
	ProviderStatus string                    `json:"providerStatus,omitempty"`
	OrderReference string                    `json:"orderReference"`
	Applied        bool                      `json:"applied"`
}

type RefundInput struct {
	StoreID string
	OrderID uuid.UUID
	// Amount zero means whatever is still refundable.
	Amount decimal.Decimal
	Reason string
}

type RefundOutcome struct {
	Success          bool                      `json:"success"`
	Status           payment.TransactionStatus `json:"status"`
	Amount           decimal.Decimal           `json:"amount"`
	ProviderRefundID string                    `json:"providerRefundId,omitempty"`
	FinancialStatus  order.FinancialStatus     `json:"financialStatus,omitempty"`
	ErrorCode        string                    `json:"errorCode,omitempty"`
	ErrorMessage     string                    `json:"errorMessage,omitempty"`
}

type Service interface {
	TestConnection(ctx context.Context, storeID string, providerType payment.ProviderType) error
	PollStatus(ctx context.Context, providerType payment.ProviderType, requestID string) (*PollResult, error)
	Refund(ctx context.Context, in RefundInput) (*RefundOutcome, error)
}

type service struct {
	Deps
}

func NewService(deps Deps) Service {
	return &service{Deps: deps}
}

func (s *service) provider(ctx context.Context, storeID string, providerType payment.ProviderType) (payment.Provider, error) {
	p, err := s.Providers.GetConfiguredProvider(ctx, storeID, providerType)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProviderNotConfigured
	}
	return p, nil
}

func (s *service) TestConnection(ctx context.Context, storeID string, providerType payment.ProviderType) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "admin"),
		zap.String("method", "TestConnection"),
		zap.String("store_id", storeID),
		zap.String("provider", string(providerType)),
	)

	if !utils.CanManageStore(ctx, storeID) {
		return ErrForbidden
	}

	p, err := s.provider(ctx, storeID, providerType)
	if err != nil {
		log.Warn("provider unavailable", zap.Error(err))
		return err
	}
	if err := p.TestConnection(ctx); err != nil {
		log.Warn("connection test failed", zap.Error(err))
		return err
	}

	log.Info("connection test passed")
	return nil
}

// PollStatus asks the gateway for the current state of a payment, records
// the answer as a status_check entry and finalizes the payment when the
// gateway reports a new status.
func (s *service) PollStatus(ctx context.Context, providerType payment.ProviderType, requestID string) (*PollResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "admin"),
		zap.String("method", "PollStatus"),
		zap.String("provider", string(providerType)),
		zap.String("provider_request_id", requestID),
	)

	if !providerType.Valid() {
		return nil, payment.ErrUnknownProvider
	}
	pending, err := s.Ledger.GetPendingPaymentByRequestID(ctx, providerType, requestID)
	if err != nil {
		return nil, err
	}
	if !utils.CanManageStore(ctx, pending.StoreID) {
		// not revealing that the payment exists
		return nil, payment.ErrPendingPaymentNotFound
	}

	p, err := s.provider(ctx, pending.StoreID, providerType)
	if err != nil {
		return nil, err
	}

	status, err := p.GetTransactionStatus(ctx, payment.StatusRequest{ProviderRequestID: requestID})
	if err != nil {
		log.Error("status lookup failed", zap.Error(err))
		return nil, err
	}

	orderID := pending.OrderID
	entry := &payment.Transaction{
		StoreID:               pending.StoreID,
		OrderID:               &orderID,
		Provider:              providerType,
		Type:                  payment.TypeStatusCheck,
		Status:                status.Status,
		Amount:                pending.Amount,
		Currency:              pending.Currency,
		ProviderRequestID:     requestID,
		ProviderTransactionID: status.ProviderTransactionID,
		Metadata: map[string]any{
			"provider_status": status.ProviderStatus,
			"checked_at":      time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.Ledger.CreateTransaction(ctx, entry); err != nil {
		log.Error("failed to record status check", zap.Error(err))
	}

	res := &PollResult{
		Status:         pending.Status,
		ProviderStatus: status.ProviderStatus,
		OrderReference: pending.OrderReference,
	}
	if pending.Status.IsTerminal() || !payment.CanTransition(pending.Status, status.Status) {
		return res, nil
	}

	out, err := s.Finalizer.Apply(ctx, pending.StoreID, p, payment.ParsedCallback{
		Success:               status.Status == payment.StatusSuccess,
		Status:                status.Status,
		ProviderStatus:        status.ProviderStatus,
		ProviderTransactionID: status.ProviderTransactionID,
		ProviderRequestID:     requestID,
		Amount:                status.Amount,
		Currency:              status.Currency,
		OrderReference:        pending.OrderReference,
		RawData:               status.Raw,
	}, webhook.SourcePoll)
	if err != nil {
		return nil, err
	}

	res.Status = out.Status
	res.Applied = !out.Duplicate && out.Status != pending.Status
	log.Info("status poll applied", zap.String("status", string(out.Status)), zap.Bool("applied", res.Applied))
	return res, nil
}

// Refund sends a refund for a paid order and records it. Refunds are
// bounded by what the charge settled minus what is already refunded or
// reserved by a refund still in flight.
func (s *service) Refund(ctx context.Context, in RefundInput) (*RefundOutcome, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "admin"),
		zap.String("method", "Refund"),
		zap.String("store_id", in.StoreID),
		zap.String("order_id", in.OrderID.String()),
	)

	if !utils.CanManageStore(ctx, in.StoreID) {
		return nil, ErrForbidden
	}
	if in.Amount.IsNegative() {
		return nil, ErrInvalidRefundAmount
	}

	o, err := s.Orders.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.StoreID != in.StoreID {
		return nil, order.ErrOrderNotFound
	}
	if o.FinancialStatus != order.FinancialPaid && o.FinancialStatus != order.FinancialPartiallyRefunded {
		return nil, ErrNotRefundable
	}

	charge, err := s.Ledger.GetChargeTransaction(ctx, o.ID)
	if errors.Is(err, payment.ErrTransactionNotFound) {
		return nil, ErrNotRefundable
	}
	if err != nil {
		return nil, err
	}
	if charge.Status != payment.StatusSuccess {
		return nil, ErrNotRefundable
	}

	p, err := s.provider(ctx, in.StoreID, charge.Provider)
	if err != nil {
		return nil, err
	}

	// Reserving first keeps concurrent refunds from both passing the
	// balance check before either is recorded.
	entry := &payment.Transaction{
		StoreID:           in.StoreID,
		Provider:          charge.Provider,
		Amount:            in.Amount,
		Currency:          charge.Currency,
		ProviderRequestID: charge.ProviderRequestID,
		Metadata:          map[string]any{"reason": in.Reason},
	}
	remaining, err := s.Ledger.ReserveRefund(ctx, charge.ID, entry)
	if errors.Is(err, payment.ErrTransactionNotFound) {
		return nil, ErrNotRefundable
	}
	if err != nil {
		return nil, err
	}
	amount := entry.Amount
	log = log.With(zap.Int64("refund_id", entry.ID))

	res, err := p.Refund(ctx, payment.RefundRequest{
		ProviderTransactionID: charge.ProviderTransactionID,
		ProviderRequestID:     charge.ProviderRequestID,
		Amount:                amount,
		Currency:              charge.Currency,
		Reason:                in.Reason,
	})
	if err != nil {
		log.Error("refund call failed", zap.Error(err))
		// release the reservation; an operator reconciles if money moved anyway
		if settleErr := s.Ledger.SettleRefund(ctx, entry.ID, payment.StatusFailed, "", amount,
			map[string]any{"error_message": err.Error()}); settleErr != nil {
			log.Error("failed to release refund reservation", zap.Error(settleErr))
		}
		return nil, err
	}

	status := payment.StatusFailed
	if res.Success {
		status = payment.StatusSuccess
		if res.RefundedAmount.IsPositive() {
			amount = res.RefundedAmount
		}
	}

	if err := s.Ledger.SettleRefund(ctx, entry.ID, status, res.ProviderRefundID, amount, map[string]any{
		"error_code":    res.ErrorCode,
		"error_message": res.ErrorMessage,
	}); err != nil {
		// the gateway already moved money; the ledger row must be repaired by hand
		log.Error("failed to record refund", zap.String("provider_refund_id", res.ProviderRefundID), zap.Error(err))
	}

	out := &RefundOutcome{
		Success:          res.Success,
		Amount:           amount,
		ProviderRefundID: res.ProviderRefundID,
		ErrorCode:        res.ErrorCode,
		ErrorMessage:     res.ErrorMessage,
		Status:           status,
	}
	if !res.Success {
		log.Warn("gateway declined refund", zap.String("error_code", res.ErrorCode))
		return out, nil
	}

	full := amount.GreaterThanOrEqual(remaining)
	if _, err := s.Refunds.MarkRefunded(ctx, o.ID, full); err != nil {
		log.Error("failed to update order after refund", zap.Error(err))
		return nil, err
	}
	out.FinancialStatus = order.FinancialPartiallyRefunded
	if full {
		out.FinancialStatus = order.FinancialRefunded
	}

	log.Info("refund recorded", zap.String("amount", amount.StringFixed(2)), zap.Bool("full", full))
	return out, nil
}
