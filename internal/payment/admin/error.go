package admin

import (
	"errors"

	"storefront-be/internal/payment"
)

var (
	ErrForbidden             = errors.New("not allowed to manage this store")
	ErrProviderNotConfigured = errors.New("payment provider not configured for store")
	ErrNotRefundable         = errors.New("order has no settled payment to refund")
	ErrInvalidRefundAmount   = errors.New("refund amount must be positive")
	ErrRefundExceedsBalance  = payment.ErrRefundExceedsBalance
)
