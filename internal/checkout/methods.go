package checkout

import (
	"context"
	"fmt"

	"storefront-be/internal/payment"
)

// MethodLister returns every gateway a store currently accepts.
type MethodLister interface {
	GetActiveProviders(ctx context.Context, storeID string) ([]payment.Provider, error)
}

// Methods is the set of gateways a storefront can offer at checkout.
type Methods struct {
	StoreID string                 `json:"storeId"`
	Methods []payment.ProviderType `json:"methods"`
}

// ListMethods resolves identifier (id, slug or domain) and lists the
// store's active gateways, default first.
func ListMethods(ctx context.Context, stores StoreReader, lister MethodLister, identifier string) (*Methods, error) {
	st, err := stores.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	providers, err := lister.GetActiveProviders(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("list providers for store %s: %w", st.ID, err)
	}

	res := &Methods{StoreID: st.ID, Methods: make([]payment.ProviderType, 0, len(providers))}
	for _, p := range providers {
		res.Methods = append(res.Methods, p.Type())
	}
	return res, nil
}
