// Package auth reads admin and shopper credentials off inbound requests.
package auth

import (
	"net/http"
	"strings"
)

const (
	// SessionCookie carries the admin dashboard's token.
	SessionCookie = "storefront_admin"
	// CustomerCookie carries a signed-in shopper's token on the storefront.
	CustomerCookie = "storefront_customer"
	// CustomerHeader is the storefront's alternative to the cookie.
	CustomerHeader = "X-Customer-Token"
)

// ExtractAccessToken returns the bearer token from the Authorization header,
// falling back to the dashboard session cookie. "" means no credential.
func ExtractAccessToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// ExtractCustomerToken returns the shopper token from CustomerHeader or
// CustomerCookie. The Authorization header is left to admin tokens.
func ExtractCustomerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(CustomerHeader)); token != "" {
		return token
	}
	if cookie, err := r.Cookie(CustomerCookie); err == nil {
		return cookie.Value
	}
	return ""
}
