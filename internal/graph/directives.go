package graph

import (
	"context"

	"storefront-be/internal/utils"

	"github.com/99designs/gqlgen/graphql"
)

// AuthDirective admits store admins and internal callers. Which store an
// admin may touch is checked again by the service.
func AuthDirective(ctx context.Context, obj interface{}, next graphql.Resolver) (res interface{}, err error) {
	if utils.IsInternalRequest(ctx) {
		return next(ctx)
	}
	if _, ok := utils.GetAdminSubjectFromContext(ctx); !ok {
		return nil, ErrUnauthorized
	}
	return next(ctx)
}
