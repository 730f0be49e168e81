package order

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO orders .* RETURNING created_at`).
		WithArgs(anyArgs(25)...).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	o := &Order{
		StoreID:           "s-1",
		OrderNumber:       1001,
		OrderReference:    "ORD-1001-0042",
		Status:            StatusPending,
		FinancialStatus:   FinancialPending,
		FulfillmentStatus: FulfillmentUnfulfilled,
		Subtotal:          decimal.NewFromInt(100),
		Total:             decimal.NewFromInt(110),
		Currency:          "ILS",
		Attribution:       Attribution{DeviceType: "mobile", UTMSource: "ig"},
	}
	require.NoError(t, NewRepository(db).Create(context.Background(), o))

	assert.NotEqual(t, uuid.Nil, o.ID)
	assert.Equal(t, created, o.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateItems(t *testing.T) {
	orderID := uuid.New()
	items := []Item{
		{Name: "Mug", Quantity: 2, Price: decimal.NewFromInt(20), Total: decimal.NewFromInt(40)},
		{Name: "Tee", VariantTitle: "L", Quantity: 1, Price: decimal.NewFromInt(60), Total: decimal.NewFromInt(60)},
	}

	t.Run("Commit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		prep := mock.ExpectPrepare(`INSERT INTO order_items`)
		prep.ExpectExec().WithArgs(anyArgs(11)...).WillReturnResult(sqlmock.NewResult(1, 1))
		prep.ExpectExec().WithArgs(anyArgs(11)...).WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		require.NoError(t, NewRepository(db).CreateItems(context.Background(), orderID, items))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnFailure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		prep := mock.ExpectPrepare(`INSERT INTO order_items`)
		prep.ExpectExec().WithArgs(anyArgs(11)...).WillReturnResult(sqlmock.NewResult(1, 1))
		prep.ExpectExec().WithArgs(anyArgs(11)...).WillReturnError(errors.New("fk violation"))
		mock.ExpectRollback()

		err = NewRepository(db).CreateItems(context.Background(), orderID, items)
		assert.ErrorContains(t, err, `insert item "Tee"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, NewRepository(db).CreateItems(context.Background(), orderID, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_GetByReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	id := uuid.New()
	cols := []string{
		"id", "store_id", "order_number", "order_reference", "customer_id",
		"status", "financial_status", "fulfillment_status",
		"subtotal", "discount_amount", "credit_used", "shipping_amount", "total", "currency",
		"customer_name", "customer_email", "customer_phone", "discount_code",
		"payment_provider", "paid_at", "created_at",
	}

	mock.ExpectQuery(`FROM orders WHERE store_id = \$1 AND order_reference = \$2`).
		WithArgs("s-1", "ORD-7-0001").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			id.String(), "s-1", 7, "ORD-7-0001", nil,
			"pending", "pending", "unfulfilled",
			"100", "10", "0", "20", "110", "ILS",
			"Dana", "dana@example.com", nil, "TEN",
			"payplus", nil, time.Now(),
		))
	mock.ExpectQuery(`FROM orders WHERE store_id = \$1`).
		WithArgs("s-1", "ORD-missing").
		WillReturnError(sql.ErrNoRows)

	o, err := repo.GetByReference(context.Background(), "s-1", "ORD-7-0001")
	require.NoError(t, err)
	assert.Equal(t, id, o.ID)
	assert.Nil(t, o.CustomerID)
	assert.Equal(t, FinancialPending, o.FinancialStatus)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(110)))
	require.NotNil(t, o.DiscountCode)
	assert.Equal(t, "TEN", *o.DiscountCode)

	_, err = repo.GetByReference(context.Background(), "s-1", "ORD-missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_TransitionFinancialStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	id := uuid.New()

	mock.ExpectExec(`UPDATE orders\s+SET financial_status = \$1.*financial_status = ANY\(\$3\)`).
		WithArgs(FinancialPaid, id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders`).
		WithArgs(FinancialPaid, id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.TransitionFinancialStatus(context.Background(), id, []FinancialStatus{FinancialPending}, FinancialPaid)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.TransitionFinancialStatus(context.Background(), id, []FinancialStatus{FinancialPending}, FinancialPaid)
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = repo.TransitionFinancialStatus(context.Background(), id, nil, FinancialPaid)
	require.NoError(t, err)
	assert.False(t, moved)

	assert.NoError(t, mock.ExpectationsWereMet())
}
