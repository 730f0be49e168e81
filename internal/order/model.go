package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

type FinancialStatus string

const (
	FinancialPending           FinancialStatus = "pending"
	FinancialPaid              FinancialStatus = "paid"
	FinancialFailed            FinancialStatus = "failed"
	FinancialCancelled         FinancialStatus = "cancelled"
	FinancialRefunded          FinancialStatus = "refunded"
	FinancialPartiallyRefunded FinancialStatus = "partially_refunded"
)

type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentFulfilled   FulfillmentStatus = "fulfilled"
)

// Attribution is the marketing metadata captured at checkout.
type Attribution struct {
	DeviceType   string `json:"deviceType,omitempty"`
	UTMSource    string `json:"utmSource,omitempty"`
	UTMMedium    string `json:"utmMedium,omitempty"`
	UTMCampaign  string `json:"utmCampaign,omitempty"`
	UTMTerm      string `json:"utmTerm,omitempty"`
	UTMContent   string `json:"utmContent,omitempty"`
	InfluencerID string `json:"influencerId,omitempty"`
	Referrer     string `json:"referrer,omitempty"`
}

type Order struct {
	ID                uuid.UUID
	StoreID           string
	OrderNumber       int64
	OrderReference    string
	CustomerID        *uuid.UUID
	Status            Status
	FinancialStatus   FinancialStatus
	FulfillmentStatus FulfillmentStatus

	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	CreditUsed     decimal.Decimal
	ShippingAmount decimal.Decimal
	Total          decimal.Decimal
	Currency       string

	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	ShippingAddress json.RawMessage
	BillingAddress  json.RawMessage
	ShippingMethod  string
	DiscountCode    *string
	Attribution     Attribution

	PaymentProvider string
	Notes           string
	OrderData       json.RawMessage

	PaidAt    *time.Time
	CreatedAt time.Time
}

type Item struct {
	ID           int64
	OrderID      uuid.UUID
	ProductID    *string
	VariantID    *string
	Name         string
	VariantTitle string
	SKU          string
	Quantity     int
	Price        decimal.Decimal
	Total        decimal.Decimal
	ImageURL     string
	Properties   json.RawMessage
}
