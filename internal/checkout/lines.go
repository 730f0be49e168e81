package checkout

import (
	"encoding/json"
	"fmt"

	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/product"
	"storefront-be/internal/utils"

	"github.com/shopspring/decimal"
)

// pricedLine is a cart line after catalog prices have replaced the client's.
type pricedLine struct {
	in           ItemInput
	name         string
	variantTitle string
	sku          string
	imageURL     string
	unitPrice    decimal.Decimal
}

func (l pricedLine) total() decimal.Decimal {
	return l.unitPrice.Mul(decimal.NewFromInt(int64(l.in.Quantity)))
}

// Totals is the server-side money breakdown of one checkout.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Credit   decimal.Decimal
	Total    decimal.Decimal
}

func stockRequests(items []ItemInput) []product.StockRequest {
	out := make([]product.StockRequest, len(items))
	for i, it := range items {
		out[i] = product.StockRequest{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			Quantity:  it.Quantity,
		}
	}
	return out
}

// priceLines takes the unit price from the catalog (variant over product)
// and adds add-on deltas. Names fall back to the catalog when the client
// omits them. Lines must already have passed CheckAvailability.
func priceLines(catalog *product.Catalog, items []ItemInput) []pricedLine {
	out := make([]pricedLine, 0, len(items))
	for _, it := range items {
		l := pricedLine{
			in:           it,
			name:         it.Name,
			variantTitle: it.VariantTitle,
			sku:          it.SKU,
			imageURL:     it.ImageURL,
		}

		p, _ := catalog.Product(it.ProductID)
		base := decimal.Zero
		if p != nil {
			base = p.Price
			if l.name == "" {
				l.name = p.Name
			}
			if l.sku == "" {
				l.sku = p.SKU
			}
			if l.imageURL == "" {
				l.imageURL = utils.PtrString(p.ImageURL)
			}
		}
		if v, ok := catalog.Variant(it.VariantID); ok && it.VariantID != "" {
			if !v.Price.IsZero() {
				base = v.Price
			}
			if l.variantTitle == "" {
				l.variantTitle = v.Title
			}
			if v.SKU != "" {
				l.sku = v.SKU
			}
			if v.ImageURL != nil {
				l.imageURL = *v.ImageURL
			}
		}

		unit := nonNegative(base)
		for _, a := range it.AddOns {
			unit = unit.Add(nonNegative(a.Price))
		}
		l.unitPrice = unit.Round(2)
		out = append(out, l)
	}
	return out
}

func subtotal(lines []pricedLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.total())
	}
	return sum
}

// computeTotals applies discount and store credit to subtotal+shipping.
// Credit never exceeds the customer's balance or what is left to pay.
func computeTotals(sub, shipping, discount, requestedCredit, creditBalance decimal.Decimal) Totals {
	t := Totals{
		Subtotal: sub,
		Shipping: nonNegative(shipping).Round(2),
		Discount: decimal.Min(nonNegative(discount), sub),
	}
	remaining := t.Subtotal.Add(t.Shipping).Sub(t.Discount)
	t.Credit = decimal.Min(nonNegative(requestedCredit), nonNegative(creditBalance), nonNegative(remaining)).Round(2)
	t.Total = remaining.Sub(t.Credit)
	return t
}

// gatewayLines is what adapters receive. Their price×quantity sum equals
// Totals.Total exactly; assembleGatewayLines returns an error otherwise.
func assembleGatewayLines(lines []pricedLine, t Totals, locale string) ([]payment.LineItem, error) {
	out := make([]payment.LineItem, 0, len(lines)+3)
	for _, l := range lines {
		name := l.name
		if l.variantTitle != "" {
			name += " - " + l.variantTitle
		}
		out = append(out, payment.LineItem{
			Kind:     payment.LineProduct,
			Name:     name,
			SKU:      l.sku,
			Price:    l.unitPrice,
			Quantity: l.in.Quantity,
		})
	}
	if t.Shipping.IsPositive() {
		out = append(out, payment.LineItem{Kind: payment.LineShipping, Name: lineLabel(locale, "shipping"), Price: t.Shipping, Quantity: 1})
	}
	if t.Discount.IsPositive() {
		out = append(out, payment.LineItem{Kind: payment.LineDiscount, Name: lineLabel(locale, "discount"), Price: t.Discount.Neg(), Quantity: 1})
	}
	if t.Credit.IsPositive() {
		out = append(out, payment.LineItem{Kind: payment.LineCredit, Name: lineLabel(locale, "credit"), Price: t.Credit.Neg(), Quantity: 1})
	}

	if sum := payment.SumLines(out); !sum.Equal(t.Total) {
		return nil, fmt.Errorf("gateway lines sum to %s, total is %s", sum, t.Total)
	}
	return out, nil
}

func lineLabel(locale, kind string) string {
	labels := map[string]map[string]string{
		"he": {"shipping": "משלוח", "discount": "הנחה", "credit": "זיכוי"},
		"en": {"shipping": "Shipping", "discount": "Discount", "credit": "Store credit"},
	}
	if l, ok := labels[locale][kind]; ok {
		return l
	}
	return labels["en"][kind]
}

// orderItems snapshots the priced lines, keeping add-ons and bundle contents
// in properties.
func orderItems(lines []pricedLine) []order.Item {
	out := make([]order.Item, 0, len(lines))
	for _, l := range lines {
		item := order.Item{
			ProductID:    utils.NilIfEmpty(l.in.ProductID),
			VariantID:    utils.NilIfEmpty(l.in.VariantID),
			Name:         l.name,
			VariantTitle: l.variantTitle,
			SKU:          l.sku,
			Quantity:     l.in.Quantity,
			Price:        l.unitPrice,
			Total:        l.total(),
			ImageURL:     l.imageURL,
		}
		if len(l.in.AddOns) > 0 || len(l.in.Bundle) > 0 {
			props := map[string]any{}
			if len(l.in.AddOns) > 0 {
				props["addOns"] = l.in.AddOns
			}
			if len(l.in.Bundle) > 0 {
				props["bundle"] = l.in.Bundle
			}
			item.Properties, _ = json.Marshal(props)
		}
		out = append(out, item)
	}
	return out
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
