package graph

import (
	"context"

	"storefront-be/internal/checkout"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/admin"
	"storefront-be/internal/store"

	"github.com/stretchr/testify/mock"
)

type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Initiate(ctx context.Context, req checkout.Request) *checkout.Result {
	return m.Called(ctx, req).Get(0).(*checkout.Result)
}

type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) TestConnection(ctx context.Context, storeID string, providerType payment.ProviderType) error {
	return m.Called(ctx, storeID, providerType).Error(0)
}

func (m *MockAdminService) PollStatus(ctx context.Context, providerType payment.ProviderType, requestID string) (*admin.PollResult, error) {
	args := m.Called(ctx, providerType, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*admin.PollResult), args.Error(1)
}

func (m *MockAdminService) Refund(ctx context.Context, in admin.RefundInput) (*admin.RefundOutcome, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*admin.RefundOutcome), args.Error(1)
}

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

type MockMethods struct {
	mock.Mock
}

func (m *MockMethods) GetActiveProviders(ctx context.Context, storeID string) ([]payment.Provider, error) {
	args := m.Called(ctx, storeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Provider), args.Error(1)
}

// namedProvider only answers Type; the listing never calls anything else.
type namedProvider struct {
	payment.Provider
	t payment.ProviderType
}

func (p namedProvider) Type() payment.ProviderType { return p.t }
