package checkout

import (
	"encoding/json"
	"testing"

	"storefront-be/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceLines(t *testing.T) {
	lines := priceLines(testCatalog(), []ItemInput{
		{ProductID: "mug", Quantity: 2, Price: dec("0.01")},
		{
			ProductID: "tee", VariantID: "tee-l", Quantity: 1, Name: "Custom Tee",
			AddOns: []AddOn{{Name: "Print", Value: "DANA", Price: dec("12.5")}, {Name: "Bogus", Price: dec("-100")}},
			Bundle: json.RawMessage(`{"items":["sticker"]}`),
		},
	})
	require.Len(t, lines, 2)

	assert.Equal(t, "Mug", lines[0].name)
	assert.Equal(t, "MUG", lines[0].sku)
	assert.True(t, lines[0].unitPrice.Equal(dec("20")))
	assert.True(t, lines[0].total().Equal(dec("40")))

	assert.Equal(t, "Custom Tee", lines[1].name)
	assert.Equal(t, "L", lines[1].variantTitle)
	assert.Equal(t, "TEE-L", lines[1].sku)
	assert.True(t, lines[1].unitPrice.Equal(dec("72.5")), "variant price plus positive add-ons only")

	items := orderItems(lines)
	require.Len(t, items, 2)
	assert.Nil(t, items[0].Properties)
	assert.JSONEq(t,
		`{"addOns":[{"name":"Print","value":"DANA","price":"12.5"},{"name":"Bogus","price":"-100"}],"bundle":{"items":["sticker"]}}`,
		string(items[1].Properties))
	assert.Equal(t, "tee-l", *items[1].VariantID)
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name                                       string
		sub, ship, disc, credit, balance           string
		wantShip, wantDisc, wantCredit, wantTotal string
	}{
		{"Plain", "100", "20", "10", "0", "0", "20", "10", "0", "110"},
		{"NegativeShipping", "100", "-5", "0", "0", "0", "0", "0", "0", "100"},
		{"CreditCappedByBalance", "100", "0", "0", "40", "25", "0", "0", "25", "75"},
		{"CreditCappedByRemaining", "100", "10", "30", "500", "500", "10", "30", "80", "0"},
		{"DiscountCappedBySubtotal", "50", "10", "80", "0", "0", "10", "50", "0", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeTotals(dec(tt.sub), dec(tt.ship), dec(tt.disc), dec(tt.credit), dec(tt.balance))
			assert.True(t, got.Shipping.Equal(dec(tt.wantShip)), "shipping %s", got.Shipping)
			assert.True(t, got.Discount.Equal(dec(tt.wantDisc)), "discount %s", got.Discount)
			assert.True(t, got.Credit.Equal(dec(tt.wantCredit)), "credit %s", got.Credit)
			assert.True(t, got.Total.Equal(dec(tt.wantTotal)), "total %s", got.Total)
		})
	}
}

func TestAssembleGatewayLines_SumEqualsTotal(t *testing.T) {
	catalog := testCatalog()
	carts := [][]ItemInput{
		{{ProductID: "mug", Quantity: 1}},
		{{ProductID: "mug", Quantity: 3}, {ProductID: "tee", VariantID: "tee-l", Quantity: 1}},
		{{ProductID: "tee", VariantID: "tee-l", Quantity: 2, AddOns: []AddOn{{Name: "Wrap", Price: dec("3.33")}}}},
	}
	shippings := []string{"0", "0.99", "20"}
	discounts := []string{"0", "0.01", "13.37"}
	credits := []string{"0", "5", "9.99"}

	for _, cart := range carts {
		lines := priceLines(catalog, cart)
		sub := subtotal(lines)
		for _, ship := range shippings {
			for _, disc := range discounts {
				for _, credit := range credits {
					totals := computeTotals(sub, dec(ship), dec(disc), dec(credit), dec("100"))
					out, err := assembleGatewayLines(lines, totals, "he")
					require.NoError(t, err)
					assert.True(t, payment.SumLines(out).Equal(totals.Total),
						"ship=%s disc=%s credit=%s", ship, disc, credit)
				}
			}
		}
	}
}

func TestAssembleGatewayLines_Shape(t *testing.T) {
	lines := priceLines(testCatalog(), []ItemInput{{ProductID: "tee", VariantID: "tee-l", Quantity: 1}})
	totals := computeTotals(subtotal(lines), dec("20"), dec("6"), dec("4"), dec("4"))

	out, err := assembleGatewayLines(lines, totals, "en")
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, "Tee - L", out[0].Name)
	assert.Equal(t, payment.LineShipping, out[1].Kind)
	assert.Equal(t, "Shipping", out[1].Name)
	assert.True(t, out[2].Price.Equal(dec("-6")))
	assert.Equal(t, payment.LineCredit, out[3].Kind)
	assert.True(t, out[3].Price.Equal(dec("-4")))

	_, err = assembleGatewayLines(lines, Totals{Total: decimal.NewFromInt(1)}, "en")
	assert.Error(t, err)
}
