package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Store, error)
	// Resolve finds an active store by id, slug or custom domain.
	Resolve(ctx context.Context, identifier string) (*Store, error)
	// NextOrderNumber atomically bumps and returns the store's order counter.
	NextOrderNumber(ctx context.Context, storeID string) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const storeColumns = `
	id, slug, name, custom_domain, currency, default_locale, is_active`

func scanStore(row *sql.Row) (*Store, error) {
	var s Store
	err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.CustomDomain, &s.Currency, &s.DefaultLocale, &s.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Store, error) {
	query := `SELECT` + storeColumns + `
		FROM stores
		WHERE id::text = $1`

	return scanStore(r.db.QueryRowContext(ctx, query, id))
}

func (r *repository) Resolve(ctx context.Context, identifier string) (*Store, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, ErrStoreNotFound
	}

	// Exact id wins over slug, slug over custom domain.
	query := `SELECT` + storeColumns + `
		FROM stores
		WHERE is_active = TRUE
		  AND (id::text = $1 OR slug = $1 OR LOWER(custom_domain) = $1)
		ORDER BY (id::text = $1) DESC, (slug = $1) DESC
		LIMIT 1`

	return scanStore(r.db.QueryRowContext(ctx, query, identifier))
}

// NextOrderNumber is a single read-modify-write in the database; the number
// is consumed even if the checkout later fails, so gaps are expected.
func (r *repository) NextOrderNumber(ctx context.Context, storeID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE stores
		SET order_counter = order_counter + 1
		WHERE id::text = $1
		RETURNING order_counter
	`, storeID).Scan(&n)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrStoreNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to increment order counter",
			zap.String("store_id", storeID),
			zap.Error(err),
		)
		return 0, err
	}
	return n, nil
}
