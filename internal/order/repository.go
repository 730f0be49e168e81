package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-be/internal/logger"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	CreateItems(ctx context.Context, orderID uuid.UUID, items []Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByReference(ctx context.Context, storeID, reference string) (*Order, error)

	// TransitionFinancialStatus moves the order to `to` only while its
	// financial status is one of `from`. false means nothing matched.
	TransitionFinancialStatus(ctx context.Context, id uuid.UUID, from []FinancialStatus, to FinancialStatus) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	attribution, err := json.Marshal(o.Attribution)
	if err != nil {
		return fmt.Errorf("encode attribution: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO orders (
			id, store_id, order_number, order_reference, customer_id,
			status, financial_status, fulfillment_status,
			subtotal, discount_amount, credit_used, shipping_amount, total, currency,
			customer_name, customer_email, customer_phone,
			shipping_address, billing_address, shipping_method, discount_code,
			attribution, payment_provider, notes, order_data
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,
			$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
		)
		RETURNING created_at
	`,
		o.ID, o.StoreID, o.OrderNumber, o.OrderReference, o.CustomerID,
		o.Status, o.FinancialStatus, o.FulfillmentStatus,
		o.Subtotal, o.DiscountAmount, o.CreditUsed, o.ShippingAmount, o.Total, o.Currency,
		o.CustomerName, o.CustomerEmail, utils.NilIfEmpty(o.CustomerPhone),
		nullJSON(o.ShippingAddress), nullJSON(o.BillingAddress), utils.NilIfEmpty(o.ShippingMethod), o.DiscountCode,
		attribution, o.PaymentProvider, utils.NilIfEmpty(o.Notes), nullJSON(o.OrderData),
	).Scan(&o.CreatedAt)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to insert order",
			zap.String("layer", "repository"),
			zap.String("store_id", o.StoreID),
			zap.Int64("order_number", o.OrderNumber),
			zap.Error(err),
		)
	}
	return err
}

// CreateItems writes every line or none.
func (r *repository) CreateItems(ctx context.Context, orderID uuid.UUID, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (
			order_id, product_id, variant_id, name, variant_title, sku,
			quantity, price, total, image_url, properties
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx,
			orderID, item.ProductID, item.VariantID, item.Name, utils.NilIfEmpty(item.VariantTitle), utils.NilIfEmpty(item.SKU),
			item.Quantity, item.Price, item.Total, utils.NilIfEmpty(item.ImageURL), nullJSON(item.Properties),
		); err != nil {
			return fmt.Errorf("insert item %q: %w", item.Name, err)
		}
	}

	return tx.Commit()
}

const orderColumns = `
	id, store_id, order_number, order_reference, customer_id,
	status, financial_status, fulfillment_status,
	subtotal, discount_amount, credit_used, shipping_amount, total, currency,
	customer_name, customer_email, customer_phone, discount_code,
	payment_provider, paid_at, created_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var (
		o     Order
		phone sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.StoreID, &o.OrderNumber, &o.OrderReference, &o.CustomerID,
		&o.Status, &o.FinancialStatus, &o.FulfillmentStatus,
		&o.Subtotal, &o.DiscountAmount, &o.CreditUsed, &o.ShippingAmount, &o.Total, &o.Currency,
		&o.CustomerName, &o.CustomerEmail, &phone, &o.DiscountCode,
		&o.PaymentProvider, &o.PaidAt, &o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.CustomerPhone = phone.String
	return &o, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *repository) GetByReference(ctx context.Context, storeID, reference string) (*Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE store_id = $1 AND order_reference = $2`,
		storeID, reference))
}

func (r *repository) TransitionFinancialStatus(
	ctx context.Context,
	id uuid.UUID,
	from []FinancialStatus,
	to FinancialStatus,
) (bool, error) {

	if len(from) == 0 {
		return false, nil
	}
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	// paid confirms the order, cancelled closes it; other moves leave
	// status alone.
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET financial_status = $1,
			status = CASE
				WHEN $1 = 'paid' THEN 'confirmed'
				WHEN $1 = 'cancelled' THEN 'cancelled'
				ELSE status
			END,
			paid_at = CASE WHEN $1 = 'paid' THEN NOW() ELSE paid_at END,
			updated_at = NOW()
		WHERE id = $2
		  AND financial_status = ANY($3)
	`, to, id, pq.Array(sources))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
