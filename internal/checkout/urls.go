package checkout

import (
	"net/url"
	"strings"

	"storefront-be/internal/payment"
	"storefront-be/internal/store"
)

type redirectURLs struct {
	Success  string
	Failure  string
	Cancel   string
	Callback string
}

// buildRedirectURLs prefers the store's custom domain over the shared
// platform host, where stores live under /{slug}.
func buildRedirectURLs(s *store.Store, platformBase, apiBase, reference string, provider payment.ProviderType) redirectURLs {
	base := strings.TrimRight(platformBase, "/") + "/" + url.PathEscape(s.Slug)
	if s.HasCustomDomain() {
		domain := strings.TrimSpace(*s.CustomDomain)
		domain = strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://")
		base = "https://" + strings.TrimRight(domain, "/")
	}

	q := url.Values{}
	q.Set("ref", reference)
	q.Set("provider", string(provider))
	query := "?" + q.Encode()

	return redirectURLs{
		Success:  base + "/checkout/success" + query,
		Failure:  base + "/checkout/failed" + query,
		Cancel:   base + "/checkout/cancelled" + query,
		Callback: strings.TrimRight(apiBase, "/") + "/webhooks/" + string(provider) + "/" + url.PathEscape(s.ID),
	}
}
