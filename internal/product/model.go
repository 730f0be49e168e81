package product

import "github.com/shopspring/decimal"

type Product struct {
	ID             string
	StoreID        string
	Name           string
	SKU            string
	Price          decimal.Decimal
	ImageURL       *string
	IsActive       bool
	HasVariants    bool
	TrackInventory bool
	Inventory      int
	AllowBackorder bool
}

type Variant struct {
	ID             string
	ProductID      string
	Title          string
	SKU            string
	Price          decimal.Decimal
	ImageURL       *string
	Inventory      int
	AllowBackorder bool
}

// Catalog is the read-only snapshot checkout validates a cart against.
type Catalog struct {
	Products map[string]*Product
	Variants map[string]*Variant
}

func (c *Catalog) Product(id string) (*Product, bool) {
	p, ok := c.Products[id]
	return p, ok
}

func (c *Catalog) Variant(id string) (*Variant, bool) {
	v, ok := c.Variants[id]
	return v, ok
}

// StockRequest is one cart line as far as inventory is concerned.
type StockRequest struct {
	ProductID string
	VariantID string
	Name      string
	Quantity  int
}

// StockIssue describes one line that cannot be sold.
type StockIssue struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Availability groups every violation found in a cart.
type Availability struct {
	OutOfStock   []StockIssue
	Insufficient []StockIssue
	Inactive     []StockIssue
}

func (a *Availability) OK() bool {
	return len(a.OutOfStock) == 0 && len(a.Insufficient) == 0 && len(a.Inactive) == 0
}
