package discount

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

type Discount struct {
	ID            uuid.UUID
	StoreID       string
	Code          string
	Type          Type
	Value         decimal.Decimal
	UsageCount    int
	UsageLimit    *int
	MinimumAmount *decimal.Decimal
	StartsAt      *time.Time
	EndsAt        *time.Time
	IsActive      bool
}

// Applied is a validated discount and the amount it takes off this subtotal.
type Applied struct {
	Discount *Discount
	Amount   decimal.Decimal
}

// Check validates the live record against subtotal at now.
func (d *Discount) Check(subtotal decimal.Decimal, now time.Time) error {
	if !d.IsActive {
		return ErrInactive
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return ErrNotStarted
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return ErrExpired
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return ErrUsageLimitReached
	}
	if d.MinimumAmount != nil && subtotal.LessThan(*d.MinimumAmount) {
		return ErrMinimumNotMet
	}
	return nil
}

// AmountFor is the server-side discount value, never more than subtotal.
func (d *Discount) AmountFor(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || !d.Value.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		amount = subtotal.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	case TypeFixed:
		amount = d.Value
	default:
		return decimal.Zero
	}
	return decimal.Min(amount, subtotal)
}
