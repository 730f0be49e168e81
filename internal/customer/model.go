package customer

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrInvalidEmail = errors.New("invalid customer email")

type Customer struct {
	ID               uuid.UUID
	StoreID          string
	Email            string
	Name             string
	Phone            string
	AcceptsMarketing bool
	HasPassword      bool
	CreditBalance    decimal.Decimal
}

// ResolveInput is what checkout knows about the buyer.
type ResolveInput struct {
	StoreID          string
	Email            string
	Name             string
	Phone            string
	AcceptsMarketing *bool
	CreateAccount    bool
	Password         string
	// Authenticated means the caller holds a session for Email. Only then
	// may the stored name and phone be replaced.
	Authenticated bool
}
