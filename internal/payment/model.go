package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the canonical status every provider code maps into.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusSuccess    TransactionStatus = "success"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"

	// StatusExpired is only ever set on a PendingPayment by the expiry sweep.
	StatusExpired TransactionStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s != StatusPending && s != StatusProcessing
}

// CanTransition encodes pending -> processing -> {success|failed|cancelled}.
// Terminal states never move; pending may skip processing.
func CanTransition(from, to TransactionStatus) bool {
	if from.IsTerminal() || from == to {
		return false
	}
	switch to {
	case StatusProcessing:
		return from == StatusPending
	case StatusSuccess, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type ProviderType string

const (
	ProviderPayPlus      ProviderType = "payplus"
	ProviderPelecard     ProviderType = "pelecard"
	ProviderPayPal       ProviderType = "paypal"
	ProviderHostedFields ProviderType = "hosted_fields"
)

func (p ProviderType) Valid() bool {
	switch p {
	case ProviderPayPlus, ProviderPelecard, ProviderPayPal, ProviderHostedFields:
		return true
	}
	return false
}

type TransactionType string

const (
	TypeCharge        TransactionType = "charge"
	TypeRefund        TransactionType = "refund"
	TypeVoid          TransactionType = "void"
	TypeAuthorization TransactionType = "authorization"
	TypeStatusCheck   TransactionType = "status_check"
)

// ProviderConfig is one store's credential row for one gateway.
type ProviderConfig struct {
	ID           string
	StoreID      string
	ProviderType ProviderType
	Credentials  map[string]string
	Settings     map[string]any
	IsActive     bool
	IsDefault    bool
	TestMode     bool
}

// Setting returns a string setting or "" when unset.
func (c ProviderConfig) Setting(key string) string {
	if v, ok := c.Settings[key].(string); ok {
		return v
	}
	return ""
}

type Customer struct {
	Name       string
	Email      string
	Phone      string
	Address    string
	City       string
	PostalCode string
}

type LineKind string

const (
	LineProduct  LineKind = "product"
	LineShipping LineKind = "shipping"
	LineDiscount LineKind = "discount"
	LineCredit   LineKind = "credit"
)

// LineItem is one gateway line. Shipping is a positive line, discounts and
// store credit are negative lines.
type LineItem struct {
	Kind     LineKind
	Name     string
	SKU      string
	Price    decimal.Decimal
	Quantity int
}

func (l LineItem) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SumLines is the amount a gateway will see as the sum of its lines.
func SumLines(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

type InitiateRequest struct {
	OrderReference string
	OrderNumber    int64
	Amount         decimal.Decimal
	Currency       string
	Customer       Customer
	Items          []LineItem

	SuccessURL  string
	FailureURL  string
	CancelURL   string
	CallbackURL string

	Metadata map[string]string
}

type InitiateResult struct {
	Success           bool            `json:"success"`
	PaymentURL        string          `json:"paymentUrl,omitempty"`
	ClientToken       string          `json:"clientToken,omitempty"`
	ProviderRequestID string          `json:"providerRequestId,omitempty"`
	ErrorCode         string          `json:"errorCode,omitempty"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

type RefundRequest struct {
	ProviderTransactionID string
	ProviderRequestID     string
	Amount                decimal.Decimal
	Currency              string
	Reason                string
}

type RefundResult struct {
	Success          bool
	RefundedAmount   decimal.Decimal
	ProviderRefundID string
	ErrorCode        string
	ErrorMessage     string
	Raw              json.RawMessage
}

type StatusRequest struct {
	ProviderRequestID     string
	ProviderTransactionID string
}

type StatusResult struct {
	Status                TransactionStatus
	ProviderStatus        string
	ProviderTransactionID string
	Amount                decimal.Decimal
	Currency              string
	Raw                   json.RawMessage
}

type WebhookValidation struct {
	IsValid bool
	Error   string
}

type CardInfo struct {
	Last4          string `json:"last4,omitempty"`
	Brand          string `json:"brand,omitempty"`
	HolderName     string `json:"holderName,omitempty"`
	ApprovalNumber string `json:"approvalNumber,omitempty"`
}

// ParsedCallback is the normalized shape of a webhook or browser redirect.
type ParsedCallback struct {
	Success               bool
	Status                TransactionStatus
	ProviderStatus        string
	ProviderTransactionID string
	ProviderRequestID     string
	Amount                decimal.Decimal
	Currency              string
	OrderReference        string
	Card                  CardInfo
	ErrorCode             string
	ErrorMessage          string
	RawData               json.RawMessage
}

// FailedCallback is what parsers return for payloads they cannot read.
func FailedCallback(raw []byte, code, msg string) ParsedCallback {
	return ParsedCallback{
		Status:       StatusFailed,
		ErrorCode:    code,
		ErrorMessage: msg,
		RawData:      rawJSON(raw),
	}
}

// PendingPayment bridges "order created" and "gateway outcome known".
type PendingPayment struct {
	ID                uuid.UUID
	StoreID           string
	Provider          ProviderType
	ProviderRequestID string
	OrderID           uuid.UUID
	OrderReference    string
	OrderData         json.RawMessage
	CartItems         json.RawMessage
	Amount            decimal.Decimal
	Currency          string
	Status            TransactionStatus
	ExpiresAt         time.Time
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// Transaction is one ledger entry.
type Transaction struct {
	ID                    int64
	StoreID               string
	OrderID               *uuid.UUID
	Provider              ProviderType
	Type                  TransactionType
	Status                TransactionStatus
	Amount                decimal.Decimal
	Currency              string
	ProviderRequestID     string
	ProviderTransactionID string
	Metadata              map[string]any
	CreatedAt             time.Time
}

// rawJSON keeps raw callback bytes storable as jsonb even when they are not JSON.
func rawJSON(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
