package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	GetActiveConfig(ctx context.Context, storeID string, provider ProviderType) (*ProviderConfig, error)
	GetDefaultConfig(ctx context.Context, storeID string) (*ProviderConfig, error)
	ListActiveConfigs(ctx context.Context, storeID string) ([]ProviderConfig, error)

	CreatePendingPayment(ctx context.Context, p *PendingPayment) error
	GetPendingPaymentByRequestID(ctx context.Context, provider ProviderType, requestID string) (*PendingPayment, error)
	GetPendingPaymentByOrderReference(ctx context.Context, provider ProviderType, orderReference string) (*PendingPayment, error)
	TransitionPendingPayment(ctx context.Context, id uuid.UUID, to TransactionStatus) (bool, error)
	ExpireStalePendingPayments(ctx context.Context, now time.Time) (int64, error)

	CreateTransaction(ctx context.Context, t *Transaction) error
	UpdateChargeTransaction(
		ctx context.Context,
		provider ProviderType,
		requestID string,
		status TransactionStatus,
		providerTransactionID string,
		metadata map[string]any,
	) (bool, error)
	GetChargeTransaction(ctx context.Context, orderID uuid.UUID) (*Transaction, error)
	ReserveRefund(ctx context.Context, chargeID int64, refund *Transaction) (decimal.Decimal, error)
	SettleRefund(
		ctx context.Context,
		refundID int64,
		status TransactionStatus,
		providerTransactionID string,
		amount decimal.Decimal,
		metadata map[string]any,
	) error

	SavePaymentWebhook(
		ctx context.Context,
		provider ProviderType,
		eventID string,
		eventType string,
		requestID string,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, isDuplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const configColumns = `
	id, store_id, provider_type, credentials, settings,
	is_active, is_default, test_mode`

func scanConfig(row interface{ Scan(...any) error }) (*ProviderConfig, error) {
	var (
		c           ProviderConfig
		credentials []byte
		settings    []byte
	)
	if err := row.Scan(
		&c.ID, &c.StoreID, &c.ProviderType, &credentials, &settings,
		&c.IsActive, &c.IsDefault, &c.TestMode,
	); err != nil {
		return nil, err
	}

	c.Credentials = map[string]string{}
	if len(credentials) > 0 {
		if err := json.Unmarshal(credentials, &c.Credentials); err != nil {
			return nil, fmt.Errorf("decode credentials for config %s: %w", c.ID, err)
		}
	}
	c.Settings = map[string]any{}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &c.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for config %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (r *repository) GetActiveConfig(
	ctx context.Context,
	storeID string,
	provider ProviderType,
) (*ProviderConfig, error) {

	query := `SELECT` + configColumns + `
		FROM payment_provider_configs
		WHERE store_id = $1 AND provider_type = $2 AND is_active = TRUE
		LIMIT 1`

	c, err := scanConfig(r.db.QueryRowContext(ctx, query, storeID, provider))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProviderConfigNotFound
	}
	return c, err
}

func (r *repository) GetDefaultConfig(ctx context.Context, storeID string) (*ProviderConfig, error) {
	query := `SELECT` + configColumns + `
		FROM payment_provider_configs
		WHERE store_id = $1 AND is_active = TRUE AND is_default = TRUE
		LIMIT 1`

	c, err := scanConfig(r.db.QueryRowContext(ctx, query, storeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProviderConfigNotFound
	}
	return c, err
}

func (r *repository) ListActiveConfigs(ctx context.Context, storeID string) ([]ProviderConfig, error) {
	query := `SELECT` + configColumns + `
		FROM payment_provider_configs
		WHERE store_id = $1 AND is_active = TRUE
		ORDER BY is_default DESC, provider_type`

	rows, err := r.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *repository) CreatePendingPayment(ctx context.Context, p *PendingPayment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO pending_payments (
			id, store_id, provider, provider_request_id, order_id,
			order_reference, order_data, cart_items, amount, currency,
			status, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at
	`,
		p.ID, p.StoreID, p.Provider, p.ProviderRequestID, p.OrderID,
		p.OrderReference, nullJSON(p.OrderData), nullJSON(p.CartItems), p.Amount, p.Currency,
		p.Status, p.ExpiresAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to insert pending payment",
			zap.String("order_id", p.OrderID.String()),
			zap.String("provider_request_id", p.ProviderRequestID),
			zap.Error(err),
		)
	}
	return err
}

const pendingColumns = `
	id, store_id, provider, provider_request_id, order_id, order_reference,
	order_data, cart_items, amount, currency, status, expires_at,
	created_at, resolved_at`

func scanPending(row interface{ Scan(...any) error }) (*PendingPayment, error) {
	var p PendingPayment
	var orderData, cartItems []byte
	err := row.Scan(
		&p.ID, &p.StoreID, &p.Provider, &p.ProviderRequestID, &p.OrderID, &p.OrderReference,
		&orderData, &cartItems, &p.Amount, &p.Currency, &p.Status, &p.ExpiresAt,
		&p.CreatedAt, &p.ResolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPendingPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.OrderData = orderData
	p.CartItems = cartItems
	return &p, nil
}

func (r *repository) GetPendingPaymentByRequestID(
	ctx context.Context,
	provider ProviderType,
	requestID string,
) (*PendingPayment, error) {

	query := `SELECT` + pendingColumns + `
		FROM pending_payments
		WHERE provider = $1 AND provider_request_id = $2`

	return scanPending(r.db.QueryRowContext(ctx, query, provider, requestID))
}

func (r *repository) GetPendingPaymentByOrderReference(
	ctx context.Context,
	provider ProviderType,
	orderReference string,
) (*PendingPayment, error) {

	query := `SELECT` + pendingColumns + `
		FROM pending_payments
		WHERE provider = $1 AND order_reference = $2
		ORDER BY created_at DESC
		LIMIT 1`

	return scanPending(r.db.QueryRowContext(ctx, query, provider, orderReference))
}

// sourceStatuses lists the states a row may be in for a move to `to`.
func sourceStatuses(to TransactionStatus) []string {
	var from []string
	for _, s := range []TransactionStatus{StatusPending, StatusProcessing} {
		if CanTransition(s, to) {
			from = append(from, string(s))
		}
	}
	return from
}

// TransitionPendingPayment moves a non-terminal row to `to` in a single
// conditional UPDATE. false means another delivery already resolved it (or
// the move is not allowed); callers treat that as a no-op.
func (r *repository) TransitionPendingPayment(
	ctx context.Context,
	id uuid.UUID,
	to TransactionStatus,
) (bool, error) {

	from := sourceStatuses(to)
	if len(from) == 0 {
		return false, nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_payments
		SET status = $1,
			resolved_at = CASE WHEN $1 IN ('pending', 'processing') THEN resolved_at ELSE NOW() END
		WHERE id = $2
		  AND status = ANY($3)
	`, to, id, pq.Array(from))
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *repository) ExpireStalePendingPayments(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_payments
		SET status = 'expired', resolved_at = $1
		WHERE status IN ('pending', 'processing')
		  AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) CreateTransaction(ctx context.Context, t *Transaction) error {
	metadata, err := json.Marshal(orEmpty(t.Metadata))
	if err != nil {
		return fmt.Errorf("encode transaction metadata: %w", err)
	}

	return r.db.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (
			store_id, order_id, provider, type, status, amount, currency,
			provider_request_id, provider_transaction_id, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at
	`,
		t.StoreID, t.OrderID, t.Provider, t.Type, t.Status, t.Amount, t.Currency,
		nullString(t.ProviderRequestID), nullString(t.ProviderTransactionID), metadata,
	).Scan(&t.ID, &t.CreatedAt)
}

// UpdateChargeTransaction settles the initial charge row. It only touches
// rows that are still non-terminal, so re-delivered callbacks change nothing.
func (r *repository) UpdateChargeTransaction(
	ctx context.Context,
	provider ProviderType,
	requestID string,
	status TransactionStatus,
	providerTransactionID string,
	metadata map[string]any,
) (bool, error) {

	patch, err := json.Marshal(orEmpty(metadata))
	if err != nil {
		return false, fmt.Errorf("encode transaction metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $1,
			provider_transaction_id = COALESCE($2, provider_transaction_id),
			metadata = COALESCE(metadata, '{}'::jsonb) || $3::jsonb,
			updated_at = NOW()
		WHERE provider = $4
		  AND provider_request_id = $5
		  AND type = 'charge'
		  AND status IN ('pending', 'processing')
	`, status, nullString(providerTransactionID), patch, provider, requestID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *repository) GetChargeTransaction(ctx context.Context, orderID uuid.UUID) (*Transaction, error) {
	var (
		t        Transaction
		reqID    sql.NullString
		txID     sql.NullString
		metadata []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, store_id, order_id, provider, type, status, amount, currency,
			provider_request_id, provider_transaction_id, metadata, created_at
		FROM payment_transactions
		WHERE order_id = $1 AND type = 'charge'
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID).Scan(
		&t.ID, &t.StoreID, &t.OrderID, &t.Provider, &t.Type, &t.Status, &t.Amount, &t.Currency,
		&reqID, &txID, &metadata, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	t.ProviderRequestID = reqID.String
	t.ProviderTransactionID = txID.String
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &t.Metadata)
	}
	return &t, nil
}

// ReserveRefund books a pending refund row against a settled charge. The
// charge row stays locked until commit, so refunds on one order run one at
// a time and each sees the reservations made before it. A zero
// refund.Amount reserves the whole remaining balance. The returned balance
// is what was refundable before this reservation.
func (r *repository) ReserveRefund(ctx context.Context, chargeID int64, refund *Transaction) (decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	var (
		charged decimal.Decimal
		orderID uuid.UUID
	)
	err = tx.QueryRowContext(ctx, `
		SELECT amount, order_id
		FROM payment_transactions
		WHERE id = $1 AND type = 'charge' AND status = 'success'
		FOR UPDATE
	`, chargeID).Scan(&charged, &orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrTransactionNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}

	var reserved decimal.Decimal
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payment_transactions
		WHERE order_id = $1 AND type = 'refund' AND status IN ('pending', 'success')
	`, orderID).Scan(&reserved); err != nil {
		return decimal.Zero, err
	}

	remaining := charged.Sub(reserved)
	if refund.Amount.IsZero() {
		refund.Amount = remaining
	}
	if !refund.Amount.IsPositive() || refund.Amount.GreaterThan(remaining) {
		return remaining, fmt.Errorf("%w: remaining %s", ErrRefundExceedsBalance, remaining.StringFixed(2))
	}

	metadata, err := json.Marshal(orEmpty(refund.Metadata))
	if err != nil {
		return decimal.Zero, fmt.Errorf("encode transaction metadata: %w", err)
	}
	refund.OrderID = &orderID
	refund.Type = TypeRefund
	refund.Status = StatusPending

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (
			store_id, order_id, provider, type, status, amount, currency,
			provider_request_id, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at
	`,
		refund.StoreID, orderID, refund.Provider, refund.Type, refund.Status, refund.Amount, refund.Currency,
		nullString(refund.ProviderRequestID), metadata,
	).Scan(&refund.ID, &refund.CreatedAt); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	return remaining, nil
}

// SettleRefund records the gateway's answer on a reserved refund. A failed
// refund stops counting against the balance.
func (r *repository) SettleRefund(
	ctx context.Context,
	refundID int64,
	status TransactionStatus,
	providerTransactionID string,
	amount decimal.Decimal,
	metadata map[string]any,
) error {

	patch, err := json.Marshal(orEmpty(metadata))
	if err != nil {
		return fmt.Errorf("encode transaction metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $1,
			provider_transaction_id = COALESCE($2, provider_transaction_id),
			amount = $3,
			metadata = COALESCE(metadata, '{}'::jsonb) || $4::jsonb,
			updated_at = NOW()
		WHERE id = $5 AND type = 'refund' AND status = 'pending'
	`, status, nullString(providerTransactionID), amount, patch, refundID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *repository) SavePaymentWebhook(
	ctx context.Context,
	provider ProviderType,
	eventID string,
	eventType string,
	requestID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_type,
		event_id,
		provider_request_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventType,
		eventID,
		requestID,
		signatureValid,
		nullJSON(payload),
	).Scan(&id)

	if err != nil {
		// Duplicate webhook → idempotent success
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET processed_at = now()
		WHERE id = $1
	`, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET process_error = $2
		WHERE id = $1
	`, webhookID, reason)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
