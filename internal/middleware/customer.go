package middleware

import (
	"errors"
	"net/http"

	"storefront-be/internal/auth"
	"storefront-be/internal/logger"
	"storefront-be/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// CustomerClaims is what the storefront's shopper tokens carry. The subject
// is the customer id; a token is only good for the store it was issued by.
type CustomerClaims struct {
	StoreID string `json:"store"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// CustomerSession attaches the signed-in shopper to the request context.
// Checkout stays open to guests, so a missing or bad token only means the
// request continues anonymously.
func CustomerSession(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractCustomerToken(r)
			if tokenStr == "" || len(key) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parseCustomerToken(tokenStr, key)
			if err != nil {
				logger.FromCtx(r.Context()).Info("ignored customer token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			ctx := utils.SetCustomerContext(r.Context(), utils.CustomerSession{
				CustomerID: claims.Subject,
				StoreID:    claims.StoreID,
				Email:      claims.Email,
			})
			ctx = logger.WithFields(ctx, zap.String("customer_id", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseCustomerToken(tokenStr string, key []byte) (*CustomerClaims, error) {
	claims := &CustomerClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" || claims.StoreID == "" || claims.Email == "" {
		return nil, errors.New("token is missing customer, store or email")
	}
	return claims, nil
}
