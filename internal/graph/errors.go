package graph

import (
	"context"
	"errors"

	"storefront-be/internal/logger"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/admin"
	"storefront-be/internal/store"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeBadUserInput       = "BAD_USER_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeNotImplemented     = "NOT_IMPLEMENTED"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthenticated
	case errors.Is(err, admin.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, payment.ErrUnknownProvider),
		errors.Is(err, admin.ErrInvalidRefundAmount):
		return CodeBadUserInput
	case errors.Is(err, store.ErrStoreNotFound),
		errors.Is(err, admin.ErrProviderNotConfigured),
		errors.Is(err, payment.ErrPendingPaymentNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return CodeNotFound
	case errors.Is(err, admin.ErrNotRefundable),
		errors.Is(err, admin.ErrRefundExceedsBalance):
		return CodeConflict
	case errors.Is(err, payment.ErrUnsupported):
		return CodeNotImplemented
	case payment.IsTransport(err):
		return CodeGatewayUnavailable
	default:
		return CodeInternal
	}
}

// presentError turns a resolver error into a GraphQL error with a code in
// its extensions. Internal and gateway errors are logged and replaced with
// a generic message.
func presentError(ctx context.Context, field graphql.CollectedField, err error) *gqlerror.Error {
	code := errorCode(err)
	msg := err.Error()
	switch code {
	case CodeInternal:
		logger.FromCtx(ctx).Error("graphql field failed", zap.String("field", field.Name), zap.Error(err))
		msg = "internal error"
	case CodeGatewayUnavailable:
		logger.FromCtx(ctx).Error("graphql field failed", zap.String("field", field.Name), zap.Error(err))
		msg = "payment gateway unavailable"
	}

	gerr := &gqlerror.Error{
		Message:    msg,
		Path:       ast.Path{ast.PathName(field.Alias)},
		Extensions: map[string]interface{}{"code": code},
	}
	if field.Position != nil {
		gerr.Locations = []gqlerror.Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}
	return gerr
}
