package webhook

import "errors"

var (
	ErrInvalidSignature      = errors.New("webhook signature invalid")
	ErrProviderNotConfigured = errors.New("payment provider not configured for store")
	ErrPaymentNotFound       = errors.New("no pending payment matches callback")
	ErrUnidentifiedCallback  = errors.New("callback carries no payment identifiers")
)
