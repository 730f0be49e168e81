package graph

import (
	"context"

	"storefront-be/internal/checkout"
)

// Checkout is the resolver for the checkout field. Business failures come
// back inside the result with an error code, not as GraphQL errors.
func (r *mutationResolver) Checkout(ctx context.Context, input checkout.Request) (*checkout.Result, error) {
	c := clientFromContext(ctx)
	input.UserAgent = c.userAgent
	input.Referrer = c.referrer

	return r.CheckoutSvc.Initiate(ctx, input), nil
}

// PaymentMethods is the resolver for the paymentMethods field.
func (r *queryResolver) PaymentMethods(ctx context.Context, storeID string) (*checkout.Methods, error) {
	return checkout.ListMethods(ctx, r.Stores, r.Methods, storeID)
}
