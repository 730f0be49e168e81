package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockProviders struct {
	mock.Mock
}

func (m *MockProviders) GetConfiguredProvider(ctx context.Context, storeID string, hint payment.ProviderType) (payment.Provider, error) {
	args := m.Called(ctx, storeID, hint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(payment.Provider), args.Error(1)
}

type MockProvider struct {
	mock.Mock
	providerType payment.ProviderType
}

func (m *MockProvider) Type() payment.ProviderType {
	return m.providerType
}

func (m *MockProvider) Configure(cfg payment.ProviderConfig) error {
	return m.Called(cfg).Error(0)
}

func (m *MockProvider) InitiatePayment(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.InitiateResult), args.Error(1)
}

func (m *MockProvider) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.RefundResult), args.Error(1)
}

func (m *MockProvider) GetTransactionStatus(ctx context.Context, req payment.StatusRequest) (*payment.StatusResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.StatusResult), args.Error(1)
}

func (m *MockProvider) ValidateWebhook(body []byte, headers http.Header) payment.WebhookValidation {
	return m.Called(body, headers).Get(0).(payment.WebhookValidation)
}

func (m *MockProvider) ParseCallback(body []byte) payment.ParsedCallback {
	return m.Called(body).Get(0).(payment.ParsedCallback)
}

func (m *MockProvider) ParseRedirectParams(params url.Values) payment.ParsedCallback {
	return m.Called(params).Get(0).(payment.ParsedCallback)
}

func (m *MockProvider) TestConnection(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockCapturingProvider is a gateway that needs a server-side capture.
type MockCapturingProvider struct {
	MockProvider
}

func (m *MockCapturingProvider) Capture(ctx context.Context, requestID string) (payment.ParsedCallback, error) {
	args := m.Called(ctx, requestID)
	return args.Get(0).(payment.ParsedCallback), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetPendingPaymentByRequestID(ctx context.Context, provider payment.ProviderType, requestID string) (*payment.PendingPayment, error) {
	args := m.Called(ctx, provider, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PendingPayment), args.Error(1)
}

func (m *MockLedger) GetPendingPaymentByOrderReference(ctx context.Context, provider payment.ProviderType, ref string) (*payment.PendingPayment, error) {
	args := m.Called(ctx, provider, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PendingPayment), args.Error(1)
}

func (m *MockLedger) TransitionPendingPayment(ctx context.Context, id uuid.UUID, to payment.TransactionStatus) (bool, error) {
	args := m.Called(ctx, id, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) UpdateChargeTransaction(
	ctx context.Context,
	provider payment.ProviderType,
	requestID string,
	status payment.TransactionStatus,
	providerTransactionID string,
	metadata map[string]any,
) (bool, error) {
	args := m.Called(ctx, provider, requestID, status, providerTransactionID, metadata)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) SavePaymentWebhook(
	ctx context.Context,
	provider payment.ProviderType,
	eventID string,
	eventType string,
	requestID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {
	args := m.Called(ctx, provider, eventID, eventType, requestID, payload, signatureValid)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockLedger) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	return m.Called(ctx, webhookID).Error(0)
}

func (m *MockLedger) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	return m.Called(ctx, webhookID, reason).Error(0)
}

type MockOrders struct {
	mock.Mock
}

func (m *MockOrders) MarkAsPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrders) MarkAsFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrders) MarkAsCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrders) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockInventory struct {
	mock.Mock
}

func (m *MockInventory) CommitSale(ctx context.Context, storeID string, lines []product.StockRequest) error {
	return m.Called(ctx, storeID, lines).Error(0)
}

type MockCredit struct {
	mock.Mock
}

func (m *MockCredit) DeductCredit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return m.Called(ctx, id, amount).Error(0)
}
