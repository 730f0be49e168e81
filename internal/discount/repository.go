package discount

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type Repository interface {
	GetByCode(ctx context.Context, storeID, code string) (*Discount, error)
	// IncrementUsage bumps usage_count only while there is headroom left.
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByCode(ctx context.Context, storeID, code string) (*Discount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}

	var (
		d          Discount
		usageLimit sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, store_id, code, type, value, usage_count, usage_limit,
			minimum_amount, starts_at, ends_at, is_active
		FROM discounts
		WHERE store_id = $1 AND UPPER(code) = UPPER($2)
		LIMIT 1
	`, storeID, code).Scan(
		&d.ID, &d.StoreID, &d.Code, &d.Type, &d.Value, &d.UsageCount, &usageLimit,
		&d.MinimumAmount, &d.StartsAt, &d.EndsAt, &d.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		d.UsageLimit = &limit
	}
	return &d, nil
}

func (r *repository) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE discounts
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND (usage_limit IS NULL OR usage_count < usage_limit)
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
