package product

import (
	"context"
	"time"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	GetForCheckout(ctx context.Context, storeID string, lines []StockRequest) (*Catalog, error)
	CheckAvailability(catalog *Catalog, lines []StockRequest) *Availability
	CommitSale(ctx context.Context, storeID string, lines []StockRequest) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) GetForCheckout(ctx context.Context, storeID string, lines []StockRequest) (*Catalog, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "GetForCheckout"),
		zap.String("store_id", storeID),
	)
	start := time.Now()

	productIDs, variantIDs := collectIDs(lines)
	catalog, err := s.repo.GetForCheckout(ctx, storeID, productIDs, variantIDs)
	if err != nil {
		log.Error("failed to load catalog for checkout", zap.Error(err))
		return nil, err
	}

	log.Debug("catalog loaded",
		zap.Int("products", len(catalog.Products)),
		zap.Int("variants", len(catalog.Variants)),
		zap.Duration("duration", time.Since(start)),
	)
	return catalog, nil
}

func collectIDs(lines []StockRequest) (productIDs, variantIDs []string) {
	seenP := map[string]bool{}
	seenV := map[string]bool{}
	for _, l := range lines {
		if l.ProductID != "" && !seenP[l.ProductID] {
			seenP[l.ProductID] = true
			productIDs = append(productIDs, l.ProductID)
		}
		if l.VariantID != "" && !seenV[l.VariantID] {
			seenV[l.VariantID] = true
			variantIDs = append(variantIDs, l.VariantID)
		}
	}
	return productIDs, variantIDs
}

// CheckAvailability classifies every line instead of stopping at the first
// problem. Quantities of the same product/variant on several lines are summed
// before comparing against stock. Untracked items and backorderable items
// always pass.
func (s *service) CheckAvailability(catalog *Catalog, lines []StockRequest) *Availability {
	type key struct{ product, variant string }

	totals := map[key]int{}
	names := map[key]string{}
	var order []key
	for _, l := range lines {
		k := key{l.ProductID, l.VariantID}
		if _, seen := totals[k]; !seen {
			order = append(order, k)
			names[k] = l.Name
		}
		totals[k] += l.Quantity
	}

	out := &Availability{}
	for _, k := range order {
		qty := totals[k]
		issue := StockIssue{ProductID: k.product, VariantID: k.variant, Name: names[k], Requested: qty}

		p, ok := catalog.Product(k.product)
		if !ok || !p.IsActive {
			out.Inactive = append(out.Inactive, issue)
			continue
		}
		if issue.Name == "" {
			issue.Name = p.Name
		}

		inventory, backorder := p.Inventory, p.AllowBackorder
		if k.variant != "" {
			v, ok := catalog.Variant(k.variant)
			if !ok || v.ProductID != p.ID {
				out.Inactive = append(out.Inactive, issue)
				continue
			}
			inventory, backorder = v.Inventory, v.AllowBackorder
			if v.Title != "" && names[k] == "" {
				issue.Name = p.Name + " - " + v.Title
			}
		} else if p.HasVariants {
			// a product sold by variant cannot be bought without choosing one
			out.Inactive = append(out.Inactive, issue)
			continue
		}

		if !p.TrackInventory || backorder {
			continue
		}
		issue.Available = max(inventory, 0)
		switch {
		case inventory <= 0:
			out.OutOfStock = append(out.OutOfStock, issue)
		case inventory < qty:
			out.Insufficient = append(out.Insufficient, issue)
		}
	}
	return out
}

// CommitSale decrements stock once a payment is confirmed.
func (s *service) CommitSale(ctx context.Context, storeID string, lines []StockRequest) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CommitSale"),
		zap.String("store_id", storeID),
	)

	if err := s.repo.DecrementInventory(ctx, storeID, lines); err != nil {
		log.Error("failed to decrement inventory", zap.Error(err))
		return err
	}
	log.Info("inventory decremented", zap.Int("lines", len(lines)))
	return nil
}
