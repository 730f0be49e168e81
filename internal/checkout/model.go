package checkout

import (
	"encoding/json"

	"storefront-be/internal/product"

	"github.com/shopspring/decimal"
)

// Error codes returned to the storefront in Result.ErrorCode.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeStoreNotFound         = "STORE_NOT_FOUND"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeInventory             = "INVENTORY_ERROR"
	CodeCouponInvalid         = "COUPON_INVALID"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodePaymentInitFailed     = "PAYMENT_INIT_FAILED"
	CodeDuplicate             = "DUPLICATE"
	CodeReference             = "REFERENCE_ERROR"
	CodeTimeout               = "TIMEOUT"
	CodeInternal              = "INTERNAL_ERROR"
)

type CustomerInput struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
	Address          string `json:"address,omitempty"`
	City             string `json:"city,omitempty"`
	PostalCode       string `json:"postalCode,omitempty"`
	AcceptsMarketing *bool  `json:"acceptsMarketing,omitempty"`
	CreateAccount    bool   `json:"createAccount,omitempty"`
	Password         string `json:"password,omitempty"`
}

// AddOn is a paid option on a cart line (engraving, gift wrap).
type AddOn struct {
	Name  string          `json:"name"`
	Value string          `json:"value,omitempty"`
	Price decimal.Decimal `json:"price"`
}

type ItemInput struct {
	ProductID    string          `json:"productId"`
	VariantID    string          `json:"variantId,omitempty"`
	Name         string          `json:"name,omitempty"`
	VariantTitle string          `json:"variantTitle,omitempty"`
	SKU          string          `json:"sku,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	ImageURL     string          `json:"imageUrl,omitempty"`
	AddOns       []AddOn         `json:"addOns,omitempty"`
	Bundle       json.RawMessage `json:"bundle,omitempty"`
}

type ShippingInput struct {
	Method  string          `json:"method,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Address json.RawMessage `json:"address,omitempty"`
}

type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Request is the storefront's checkout payload. Every money field in it is
// advisory; the server recomputes prices, discount and total.
type Request struct {
	StoreID        string          `json:"storeId"`
	Provider       string          `json:"provider,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty"`
	Customer       CustomerInput   `json:"customer"`
	Items          []ItemInput     `json:"items"`
	Shipping       *ShippingInput  `json:"shipping,omitempty"`
	BillingAddress json.RawMessage `json:"billingAddress,omitempty"`
	DiscountCode   string          `json:"discountCode,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	CreditAmount   decimal.Decimal `json:"creditAmount"`
	InfluencerID   string          `json:"influencerId,omitempty"`
	Locale         string          `json:"locale,omitempty"`
	UTM            UTM             `json:"utm"`
	OrderData      json.RawMessage `json:"orderData,omitempty"`
	Notes          string          `json:"notes,omitempty"`

	UserAgent string `json:"-"`
	Referrer  string `json:"-"`
}

type Result struct {
	Success           bool            `json:"success"`
	PaymentURL        string          `json:"paymentUrl,omitempty"`
	ClientToken       string          `json:"clientToken,omitempty"`
	OrderReference    string          `json:"orderReference,omitempty"`
	OrderNumber       int64           `json:"orderNumber,omitempty"`
	ProviderRequestID string          `json:"providerRequestId,omitempty"`
	Provider          string          `json:"provider,omitempty"`
	Total             decimal.Decimal `json:"total,omitzero"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`

	OutOfStockItems        []product.StockIssue `json:"outOfStockItems,omitempty"`
	InsufficientStockItems []product.StockIssue `json:"insufficientStockItems,omitempty"`
	InactiveItems          []product.StockIssue `json:"inactiveItems,omitempty"`
}

func failure(code, msg string) *Result {
	return &Result{Success: false, ErrorCode: code, Error: msg}
}
