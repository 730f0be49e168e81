package product

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type Repository interface {
	GetForCheckout(ctx context.Context, storeID string, productIDs, variantIDs []string) (*Catalog, error)
	// DecrementInventory subtracts sold quantities from tracked items in one
	// transaction. Backorderable stock may go negative.
	DecrementInventory(ctx context.Context, storeID string, lines []StockRequest) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetForCheckout(
	ctx context.Context,
	storeID string,
	productIDs, variantIDs []string,
) (*Catalog, error) {

	c := &Catalog{
		Products: make(map[string]*Product, len(productIDs)),
		Variants: make(map[string]*Variant, len(variantIDs)),
	}

	if len(productIDs) > 0 {
		rows, err := r.db.QueryContext(ctx, `
			SELECT id, store_id, name, COALESCE(sku, ''), price, image_url,
				is_active, has_variants, track_inventory, inventory, allow_backorder
			FROM products
			WHERE store_id::text = $1
			  AND id::text = ANY($2)
		`, storeID, pq.Array(productIDs))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var p Product
			if err := rows.Scan(
				&p.ID, &p.StoreID, &p.Name, &p.SKU, &p.Price, &p.ImageURL,
				&p.IsActive, &p.HasVariants, &p.TrackInventory, &p.Inventory, &p.AllowBackorder,
			); err != nil {
				return nil, err
			}
			c.Products[p.ID] = &p
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(variantIDs) > 0 {
		rows, err := r.db.QueryContext(ctx, `
			SELECT v.id, v.product_id, v.title, COALESCE(v.sku, ''), v.price, v.image_url,
				v.inventory, v.allow_backorder
			FROM product_variants v
			JOIN products p ON p.id = v.product_id
			WHERE p.store_id::text = $1
			  AND v.id::text = ANY($2)
		`, storeID, pq.Array(variantIDs))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var v Variant
			if err := rows.Scan(
				&v.ID, &v.ProductID, &v.Title, &v.SKU, &v.Price, &v.ImageURL,
				&v.Inventory, &v.AllowBackorder,
			); err != nil {
				return nil, err
			}
			c.Variants[v.ID] = &v
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (r *repository) DecrementInventory(ctx context.Context, storeID string, lines []StockRequest) error {
	if len(lines) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if l.VariantID != "" {
			_, err = tx.ExecContext(ctx, `
				UPDATE product_variants v
				SET inventory = v.inventory - $1
				FROM products p
				WHERE p.id = v.product_id
				  AND p.track_inventory
				  AND v.id::text = $2
				  AND p.store_id::text = $3
			`, l.Quantity, l.VariantID, storeID)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE products
				SET inventory = inventory - $1
				WHERE id::text = $2
				  AND store_id::text = $3
				  AND track_inventory
			`, l.Quantity, l.ProductID, storeID)
		}
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
