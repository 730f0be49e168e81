package product

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_GetForCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("ProductsAndVariants", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`(?s)FROM products\s+WHERE store_id::text = \$1\s+AND id::text = ANY\(\$2\)`).
			WithArgs("s-1", pq.Array([]string{"p-1", "p-2"})).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "store_id", "name", "sku", "price", "image_url",
				"is_active", "has_variants", "track_inventory", "inventory", "allow_backorder",
			}).
				AddRow("p-1", "s-1", "Shirt", "SH", "50.00", nil, true, true, true, 0, false).
				AddRow("p-2", "s-1", "Mug", "MG", "12.50", "https://cdn/mug.jpg", true, false, false, 0, false))

		mock.ExpectQuery(`(?s)FROM product_variants v\s+JOIN products p ON p.id = v.product_id`).
			WithArgs("s-1", pq.Array([]string{"v-1"})).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "product_id", "title", "sku", "price", "image_url", "inventory", "allow_backorder",
			}).AddRow("v-1", "p-1", "Large", "SH-L", "55.00", nil, 3, false))

		c, err := repo.GetForCheckout(ctx, "s-1", []string{"p-1", "p-2"}, []string{"v-1"})
		require.NoError(t, err)
		require.Len(t, c.Products, 2)
		assert.True(t, c.Products["p-2"].Price.Equal(decimal.RequireFromString("12.5")))
		assert.Equal(t, "https://cdn/mug.jpg", *c.Products["p-2"].ImageURL)
		assert.Equal(t, 3, c.Variants["v-1"].Inventory)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoIDsNoQueries", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		c, err := NewRepository(db).GetForCheckout(ctx, "s-1", nil, nil)
		require.NoError(t, err)
		assert.Empty(t, c.Products)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`FROM products`).WillReturnError(errors.New("db error"))
		_, err = NewRepository(db).GetForCheckout(ctx, "s-1", []string{"p-1"}, nil)
		assert.Error(t, err)
	})
}

func TestRepository_DecrementInventory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE product_variants v\s+SET inventory = v.inventory - \$1.*AND p.track_inventory`).
		WithArgs(2, "v-1", "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE products\s+SET inventory = inventory - \$1`).
		WithArgs(1, "p-2", "s-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = NewRepository(db).DecrementInventory(context.Background(), "s-1", []StockRequest{
		{ProductID: "p-1", VariantID: "v-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 1},
		{ProductID: "p-3", Quantity: 0},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
