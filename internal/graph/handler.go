package graph

import (
	"context"
	"fmt"
	"net/http"

	"storefront-be/internal/logger"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

// NewHandler serves es over POST only. Introspection and the playground
// stay off on this surface.
func NewHandler(es graphql.ExecutableSchema) http.Handler {
	srv := handler.New(es)
	srv.AddTransport(transport.POST{})
	srv.SetRecoverFunc(func(ctx context.Context, err interface{}) error {
		logger.FromCtx(ctx).Error("graphql panic", zap.String("panic", fmt.Sprint(err)))
		return fmt.Errorf("internal error")
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		srv.ServeHTTP(w, r.WithContext(withClient(r.Context(), r)))
	})
}
