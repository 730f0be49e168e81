// Package registry resolves a store's configured gateway credentials into a
// ready-to-use payment.Provider.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront-be/internal/logger"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/hostedfields"
	"storefront-be/internal/payment/paypal"
	"storefront-be/internal/payment/payplus"
	"storefront-be/internal/payment/pelecard"

	"go.uber.org/zap"
)

// Constructor builds an unconfigured adapter.
type Constructor func(httpClient *http.Client) payment.Provider

// ConfigSource is the slice of payment.Repository the registry reads.
type ConfigSource interface {
	GetActiveConfig(ctx context.Context, storeID string, provider payment.ProviderType) (*payment.ProviderConfig, error)
	GetDefaultConfig(ctx context.Context, storeID string) (*payment.ProviderConfig, error)
	ListActiveConfigs(ctx context.Context, storeID string) ([]payment.ProviderConfig, error)
}

func defaultConstructors() map[payment.ProviderType]Constructor {
	return map[payment.ProviderType]Constructor{
		payment.ProviderPayPlus:      func(c *http.Client) payment.Provider { return payplus.New(c) },
		payment.ProviderPelecard:     func(c *http.Client) payment.Provider { return pelecard.New(c) },
		payment.ProviderPayPal:       func(c *http.Client) payment.Provider { return paypal.New(c) },
		payment.ProviderHostedFields: func(c *http.Client) payment.Provider { return hostedfields.New(c) },
	}
}

// Registry builds a fresh adapter for every lookup; adapters never share
// state between requests apart from the underlying *http.Client.
type Registry struct {
	configs      ConfigSource
	httpClient   *http.Client
	constructors map[payment.ProviderType]Constructor
}

func New(configs ConfigSource, httpClient *http.Client) *Registry {
	return &Registry{
		configs:      configs,
		httpClient:   httpClient,
		constructors: defaultConstructors(),
	}
}

// Supported lists the provider types the registry can build.
func (r *Registry) Supported() []payment.ProviderType {
	out := make([]payment.ProviderType, 0, len(r.constructors))
	for _, t := range []payment.ProviderType{
		payment.ProviderPayPlus, payment.ProviderPelecard,
		payment.ProviderPayPal, payment.ProviderHostedFields,
	} {
		if _, ok := r.constructors[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Build instantiates and configures the adapter for one credential row.
func (r *Registry) Build(cfg payment.ProviderConfig) (payment.Provider, error) {
	newProvider, ok := r.constructors[cfg.ProviderType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", payment.ErrUnknownProvider, cfg.ProviderType)
	}
	p := newProvider(r.httpClient)
	if err := p.Configure(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// GetConfiguredProvider returns the store's active adapter for hint, or the
// store's default when hint is empty. (nil, nil) means the store has no
// active provider of that kind.
func (r *Registry) GetConfiguredProvider(
	ctx context.Context,
	storeID string,
	hint payment.ProviderType,
) (payment.Provider, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "registry"),
		zap.String("store_id", storeID),
		zap.String("hint", string(hint)),
	)

	var (
		cfg *payment.ProviderConfig
		err error
	)
	if hint != "" {
		if !hint.Valid() {
			return nil, fmt.Errorf("%w: %q", payment.ErrUnknownProvider, hint)
		}
		cfg, err = r.configs.GetActiveConfig(ctx, storeID, hint)
	} else {
		cfg, err = r.configs.GetDefaultConfig(ctx, storeID)
	}
	if errors.Is(err, payment.ErrProviderConfigNotFound) {
		log.Info("no active payment provider")
		return nil, nil
	}
	if err != nil {
		log.Error("failed to load provider config", zap.Error(err))
		return nil, err
	}

	p, err := r.Build(*cfg)
	if err != nil {
		log.Error("failed to configure provider",
			zap.String("provider", string(cfg.ProviderType)),
			zap.Error(err),
		)
		return nil, err
	}
	return p, nil
}

// GetActiveProviders builds every active adapter of a store. Rows that fail
// to configure are skipped so one broken credential set does not hide the
// others from checkout.
func (r *Registry) GetActiveProviders(ctx context.Context, storeID string) ([]payment.Provider, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "registry"),
		zap.String("store_id", storeID),
	)

	cfgs, err := r.configs.ListActiveConfigs(ctx, storeID)
	if err != nil {
		log.Error("failed to list provider configs", zap.Error(err))
		return nil, err
	}

	providers := make([]payment.Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, err := r.Build(cfg)
		if err != nil {
			log.Warn("skipping misconfigured provider",
				zap.String("provider", string(cfg.ProviderType)),
				zap.Error(err),
			)
			continue
		}
		providers = append(providers, p)
	}
	return providers, nil
}
