package middleware

import (
	"context"
	"errors"
	"net/http"

	"storefront-be/internal/auth"
	"storefront-be/internal/logger"
	"storefront-be/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AdminClaims is what the platform's admin tokens carry. An empty Stores
// list means the holder may act on every store.
type AdminClaims struct {
	Stores []string `json:"stores,omitempty"`
	jwt.RegisteredClaims
}

// AdminSession puts a valid admin token's subject and store scope into the
// request context. A missing or bad token leaves the request anonymous and
// the operation itself decides whether that is enough. Requests already
// marked internal by RateLimitMiddleware pass through untouched.
func AdminSession(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.ExtractAccessToken(r) == "" || utils.IsInternalRequest(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			ctx, err := adminContext(r, key)
			if err != nil {
				logger.FromCtx(r.Context()).Info("ignored admin token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminContext(r *http.Request, key []byte) (context.Context, error) {
	tokenStr := auth.ExtractAccessToken(r)
	if tokenStr == "" || len(key) == 0 {
		return nil, errors.New("no admin token")
	}

	claims, err := parseAdminToken(tokenStr, key)
	if err != nil {
		return nil, err
	}

	ctx := utils.SetAdminContext(r.Context(), claims.Subject, claims.Stores)
	return logger.WithFields(ctx, zap.String("admin", claims.Subject)), nil
}

func parseAdminToken(tokenStr string, key []byte) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
