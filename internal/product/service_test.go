package product

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetForCheckout(ctx context.Context, storeID string, productIDs, variantIDs []string) (*Catalog, error) {
	args := m.Called(ctx, storeID, productIDs, variantIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Catalog), args.Error(1)
}

func (m *MockRepository) DecrementInventory(ctx context.Context, storeID string, lines []StockRequest) error {
	return m.Called(ctx, storeID, lines).Error(0)
}

func TestService_GetForCheckout(t *testing.T) {
	ctx := context.Background()
	lines := []StockRequest{
		{ProductID: "p-1", VariantID: "v-1", Quantity: 1},
		{ProductID: "p-1", VariantID: "v-2", Quantity: 1},
		{ProductID: "p-2", Quantity: 2},
	}

	repo := new(MockRepository)
	repo.On("GetForCheckout", ctx, "s-1", []string{"p-1", "p-2"}, []string{"v-1", "v-2"}).
		Return(&Catalog{}, nil).Once()
	repo.On("GetForCheckout", ctx, "s-2", mock.Anything, mock.Anything).
		Return(nil, errors.New("db down")).Once()

	svc := NewService(repo)

	_, err := svc.GetForCheckout(ctx, "s-1", lines)
	require.NoError(t, err)

	_, err = svc.GetForCheckout(ctx, "s-2", lines)
	assert.EqualError(t, err, "db down")

	repo.AssertExpectations(t)
}

func testCatalog() *Catalog {
	return &Catalog{
		Products: map[string]*Product{
			"tracked":   {ID: "tracked", Name: "Tracked", IsActive: true, TrackInventory: true, Inventory: 5},
			"empty":     {ID: "empty", Name: "Empty", IsActive: true, TrackInventory: true, Inventory: 0},
			"untracked": {ID: "untracked", Name: "Untracked", IsActive: true, TrackInventory: false, Inventory: -3},
			"backorder": {ID: "backorder", Name: "Backorder", IsActive: true, TrackInventory: true, Inventory: -1, AllowBackorder: true},
			"retired":   {ID: "retired", Name: "Retired", IsActive: false, TrackInventory: true, Inventory: 10},
			"shirt":     {ID: "shirt", Name: "Shirt", IsActive: true, HasVariants: true, TrackInventory: true},
		},
		Variants: map[string]*Variant{
			"shirt-l":  {ID: "shirt-l", ProductID: "shirt", Title: "L", Inventory: 1},
			"shirt-xl": {ID: "shirt-xl", ProductID: "shirt", Title: "XL", Inventory: 0, AllowBackorder: true},
		},
	}
}

func TestService_CheckAvailability(t *testing.T) {
	svc := NewService(nil)

	t.Run("AllAvailable", func(t *testing.T) {
		a := svc.CheckAvailability(testCatalog(), []StockRequest{
			{ProductID: "tracked", Quantity: 5},
			{ProductID: "untracked", Quantity: 100},
			{ProductID: "backorder", Quantity: 7},
			{ProductID: "shirt", VariantID: "shirt-l", Quantity: 1},
			{ProductID: "shirt", VariantID: "shirt-xl", Quantity: 9},
		})
		assert.True(t, a.OK())
	})

	t.Run("CollectsEveryViolation", func(t *testing.T) {
		a := svc.CheckAvailability(testCatalog(), []StockRequest{
			{ProductID: "tracked", Quantity: 6},
			{ProductID: "empty", Quantity: 1},
			{ProductID: "retired", Quantity: 1},
			{ProductID: "missing", Name: "Ghost", Quantity: 1},
			{ProductID: "shirt", Quantity: 1},
		})

		assert.False(t, a.OK())
		require.Len(t, a.Insufficient, 1)
		assert.Equal(t, "Tracked", a.Insufficient[0].Name)
		assert.Equal(t, 5, a.Insufficient[0].Available)
		assert.Equal(t, 6, a.Insufficient[0].Requested)

		require.Len(t, a.OutOfStock, 1)
		assert.Equal(t, "empty", a.OutOfStock[0].ProductID)

		assert.Len(t, a.Inactive, 3)
	})

	t.Run("QuantitiesAggregateAcrossLines", func(t *testing.T) {
		a := svc.CheckAvailability(testCatalog(), []StockRequest{
			{ProductID: "shirt", VariantID: "shirt-l", Quantity: 1},
			{ProductID: "shirt", VariantID: "shirt-l", Quantity: 1},
		})
		require.Len(t, a.Insufficient, 1)
		assert.Equal(t, 2, a.Insufficient[0].Requested)
		assert.Equal(t, "Shirt - L", a.Insufficient[0].Name)
	})

	t.Run("VariantOfAnotherProduct", func(t *testing.T) {
		a := svc.CheckAvailability(testCatalog(), []StockRequest{
			{ProductID: "tracked", VariantID: "shirt-l", Quantity: 1},
		})
		assert.Len(t, a.Inactive, 1)
	})
}

func TestService_CommitSale(t *testing.T) {
	ctx := context.Background()
	lines := []StockRequest{{ProductID: "p-1", VariantID: "v-1", Quantity: 2}}

	repo := new(MockRepository)
	repo.On("DecrementInventory", ctx, "s-1", lines).Return(nil).Once()
	repo.On("DecrementInventory", ctx, "s-2", lines).Return(errors.New("deadlock")).Once()

	svc := NewService(repo)
	require.NoError(t, svc.CommitSale(ctx, "s-1", lines))
	assert.EqualError(t, svc.CommitSale(ctx, "s-2", lines), "deadlock")
	repo.AssertExpectations(t)
}
