package checkout

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"storefront-be/internal/customer"
	"storefront-be/internal/discount"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/product"
	"storefront-be/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockStores struct {
	mock.Mock
}

func (m *MockStores) Resolve(ctx context.Context, identifier string) (*store.Store, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Store), args.Error(1)
}

func (m *MockStores) NextOrderNumber(ctx context.Context, storeID string) (int64, error) {
	args := m.Called(ctx, storeID)
	return args.Get(0).(int64), args.Error(1)
}

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

type MockCustomers struct {
	mock.Mock
}

func (m *MockCustomers) ResolveOrCreate(ctx context.Context, in customer.ResolveInput) (*customer.Customer, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

// fakeDiscountRepo backs the real discount service so coupon math is
// exercised end to end.
type fakeDiscountRepo struct {
	mu        sync.Mutex
	discounts map[string]*discount.Discount
	redeemed  int
	full      bool
}

func (f *fakeDiscountRepo) GetByCode(_ context.Context, _, code string) (*discount.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.discounts[code]
	if !ok {
		return nil, discount.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDiscountRepo) IncrementUsage(context.Context, uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false, nil
	}
	f.redeemed++
	return true, nil
}

type MockOrders struct {
	mock.Mock
}

func (m *MockOrders) Create(ctx context.Context, o *order.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *MockOrders) CreateItems(ctx context.Context, orderID uuid.UUID, items []order.Item) error {
	return m.Called(ctx, orderID, items).Error(0)
}

func (m *MockOrders) TransitionFinancialStatus(ctx context.Context, id uuid.UUID, from []order.FinancialStatus, to order.FinancialStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreatePendingPayment(ctx context.Context, p *payment.PendingPayment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockLedger) CreateTransaction(ctx context.Context, t *payment.Transaction) error {
	return m.Called(ctx, t).Error(0)
}

// fakeProvider records what checkout sends to the gateway.
type fakeProvider struct {
	mu       sync.Mutex
	requests []payment.InitiateRequest
	result   *payment.InitiateResult
	err      error
}

func (f *fakeProvider) Type() payment.ProviderType { return payment.ProviderPayPlus }
func (f *fakeProvider) Configure(payment.ProviderConfig) error { return nil }

func (f *fakeProvider) InitiatePayment(_ context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeProvider) Refund(context.Context, payment.RefundRequest) (*payment.RefundResult, error) {
	return nil, payment.ErrUnsupported
}

func (f *fakeProvider) GetTransactionStatus(context.Context, payment.StatusRequest) (*payment.StatusResult, error) {
	return nil, payment.ErrUnsupported
}

func (f *fakeProvider) ValidateWebhook([]byte, http.Header) payment.WebhookValidation {
	return payment.WebhookValidation{}
}

func (f *fakeProvider) ParseCallback(b []byte) payment.ParsedCallback {
	return payment.FailedCallback(b, "", "")
}

func (f *fakeProvider) ParseRedirectParams(url.Values) payment.ParsedCallback {
	return payment.ParsedCallback{Status: payment.StatusFailed}
}

func (f *fakeProvider) TestConnection(context.Context) error { return nil }

func (f *fakeProvider) lastRequest() payment.InitiateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// staticCatalog serves a fixed catalog and the real availability rules.
type staticCatalog struct {
	catalog *product.Catalog
	err     error
}

func (c staticCatalog) GetForCheckout(context.Context, string, []product.StockRequest) (*product.Catalog, error) {
	return c.catalog, c.err
}

func (c staticCatalog) CheckAvailability(catalog *product.Catalog, lines []product.StockRequest) *product.Availability {
	return product.NewService(nil).CheckAvailability(catalog, lines)
}
