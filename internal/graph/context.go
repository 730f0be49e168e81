package graph

import (
	"context"
	"net/http"
)

type clientKey struct{}

type client struct {
	userAgent string
	referrer  string
}

func withClient(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, clientKey{}, client{userAgent: r.UserAgent(), referrer: r.Referer()})
}

func clientFromContext(ctx context.Context) client {
	c, _ := ctx.Value(clientKey{}).(client)
	return c
}
