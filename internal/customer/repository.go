package customer

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Upsert returns the existing (store, email) customer or creates it.
	// An existing row keeps its name and phone unless refreshContact is set.
	Upsert(ctx context.Context, c *Customer, refreshContact bool) error
	UpdateMarketing(ctx context.Context, id uuid.UUID, accepts bool) error
	// SetPasswordIfEmpty never overwrites an existing hash; false means one
	// was already set.
	SetPasswordIfEmpty(ctx context.Context, id uuid.UUID, hash string) (bool, error)
	// DeductCredit lowers the balance only when it still covers amount.
	DeductCredit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, c *Customer, refreshContact bool) error {
	// DO UPDATE (not DO NOTHING) so RETURNING yields the existing row too.
	return r.db.QueryRowContext(ctx, `
		INSERT INTO customers (store_id, email, name, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store_id, email) DO UPDATE
		SET name = CASE WHEN $5 THEN COALESCE(NULLIF(EXCLUDED.name, ''), customers.name) ELSE customers.name END,
			phone = CASE WHEN $5 THEN COALESCE(NULLIF(EXCLUDED.phone, ''), customers.phone) ELSE customers.phone END,
			updated_at = NOW()
		RETURNING id, accepts_marketing, password_hash IS NOT NULL, credit_balance
	`, c.StoreID, c.Email, c.Name, c.Phone, refreshContact).
		Scan(&c.ID, &c.AcceptsMarketing, &c.HasPassword, &c.CreditBalance)
}

func (r *repository) UpdateMarketing(ctx context.Context, id uuid.UUID, accepts bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET accepts_marketing = $2, updated_at = NOW()
		WHERE id = $1
	`, id, accepts)
	return err
}

func (r *repository) SetPasswordIfEmpty(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND password_hash IS NULL
	`, id, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repository) DeductCredit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET credit_balance = credit_balance - $2, updated_at = NOW()
		WHERE id = $1 AND credit_balance >= $2
	`, id, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
