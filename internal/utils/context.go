package utils

import "context"

const (
	AdminSubjectKey contextKey = "admin_subject"
	AdminStoresKey  contextKey = "admin_stores"
)

type ctxKey string

const (
	internalRequestKey ctxKey = "internal_request"
	customerSessionKey ctxKey = "customer_session"
)

// CustomerSession is a shopper who proved who they are with a signed token.
type CustomerSession struct {
	CustomerID string
	StoreID    string
	Email      string
}

func SetCustomerContext(ctx context.Context, s CustomerSession) context.Context {
	return context.WithValue(ctx, customerSessionKey, s)
}

// CustomerFromContext returns the signed-in shopper, if any.
func CustomerFromContext(ctx context.Context) (CustomerSession, bool) {
	s, ok := ctx.Value(customerSessionKey).(CustomerSession)
	return s, ok && s.CustomerID != ""
}

// WithInternalRequest marks ctx as coming from a trusted internal caller
// (the expiry sweeper, service-to-service calls carrying the internal key).
func WithInternalRequest(ctx context.Context) context.Context {
	return context.WithValue(ctx, internalRequestKey, true)
}

func IsInternalRequest(ctx context.Context) bool {
	v, _ := ctx.Value(internalRequestKey).(bool)
	return v
}
