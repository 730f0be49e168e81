package admin

import (
	"context"
	"net/http"
	"net/url"

	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/webhook"

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

func (m *MockLedger) CreateTransaction(ctx context.Context, t *payment.Transaction) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockLedger) GetChargeTransaction(ctx context.Context, orderID uuid.UUID) (*payment.Transaction, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Transaction), args.Error(1)
}

// ReserveRefund fills the refund the way the repository does: a zero
// amount takes the returned balance, and the row gets the given id.
func (m *MockLedger) ReserveRefund(ctx context.Context, chargeID int64, refund *payment.Transaction) (decimal.Decimal, error) {
	args := m.Called(ctx, chargeID, refund)
	remaining := args.Get(0).(decimal.Decimal)
	if args.Error(1) == nil {
		if refund.Amount.IsZero() {
			refund.Amount = remaining
		}
		refund.ID = 900
		refund.Type = payment.TypeRefund
		refund.Status = payment.StatusPending
	}
	return remaining, args.Error(1)
}

func (m *MockLedger) SettleRefund(
	ctx context.Context,
	refundID int64,
	status payment.TransactionStatus,
	providerTransactionID string,
	amount decimal.Decimal,
	metadata map[string]any,
) error {
	return m.Called(ctx, refundID, status, providerTransactionID, amount, metadata).Error(0)
}

type MockOrders struct {
	mock.Mock
}

func (m *MockOrders) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrders) MarkRefunded(ctx context.Context, id uuid.UUID, full bool) (bool, error) {
	args := m.Called(ctx, id, full)
	return args.Bool(0), args.Error(1)
}

type MockApplier struct {
	mock.Mock
}

func (m *MockApplier) Apply(ctx context.Context, storeID string, p payment.Provider, cb payment.ParsedCallback, source string) (*webhook.Outcome, error) {
	args := m.Called(ctx, storeID, p, cb, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.Outcome), args.Error(1)
}
