// Package payment holds the provider-agnostic payment contract, the canonical
// status vocabulary and the ledger storage shared by every gateway adapter.
package payment

import (
	"context"
	"net/http"
	"net/url"
)

// Provider is implemented by every gateway adapter. Configure must succeed
// before any other method is called; until then they return ErrNotConfigured.
//
// Business failures (declines, validation errors reported by the gateway)
// come back inside the result values. Only *ConfigError and *TransportError
// are returned as errors.
type Provider interface {
	Type() ProviderType
	Configure(cfg ProviderConfig) error

	InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	GetTransactionStatus(ctx context.Context, req StatusRequest) (*StatusResult, error)

	// ValidateWebhook checks the signature over the raw body and the
	// source-identity header. It never mutates state.
	ValidateWebhook(body []byte, headers http.Header) WebhookValidation
	// ParseCallback never fails; unreadable payloads yield Status=failed.
	ParseCallback(body []byte) ParsedCallback
	ParseRedirectParams(params url.Values) ParsedCallback

	TestConnection(ctx context.Context) error
}

// Capturer is implemented by gateways where an approved payment has to be
// captured server-side after the customer returns.
type Capturer interface {
	Capture(ctx context.Context, providerRequestID string) (ParsedCallback, error)
}
