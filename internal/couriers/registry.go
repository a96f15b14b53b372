package couriers

import (
	"fmt"
	"sort"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Registry resolves adapters by provider, falling back to the generic adapter.
type Registry struct {
	adapters map[enums.LogisticsProvider]Adapter
	fallback Adapter
}

// NewRegistry copies adapters into a read-only registry. Each key must match
// the adapter's own provider.
func NewRegistry(adapters map[enums.LogisticsProvider]Adapter, fallback *GenericAdapter) (*Registry, error) {
	if fallback == nil {
		return nil, fmt.Errorf("fallback adapter required")
	}
	copied := make(map[enums.LogisticsProvider]Adapter, len(adapters))
	for provider, adapter := range adapters {
		if adapter == nil {
			return nil, fmt.Errorf("adapter for %s is nil", provider)
		}
		if !provider.IsValid() || adapter.Provider() != provider {
			return nil, fmt.Errorf("adapter %s registered under %s", adapter.Provider(), provider)
		}
		copied[provider] = adapter
	}
	return &Registry{adapters: copied, fallback: fallback}, nil
}

// Resolve returns the adapter for provider. ok is false when the generic
// fallback is returned instead.
func (r *Registry) Resolve(provider enums.LogisticsProvider) (Adapter, bool) {
	if adapter, ok := r.adapters[provider]; ok {
		return adapter, true
	}
	return r.fallback, false
}

// ResolveName parses a URL path value and resolves it.
func (r *Registry) ResolveName(name string) (Adapter, enums.LogisticsProvider, bool) {
	provider, err := enums.ParseLogisticsProvider(name)
	if err != nil {
		return r.fallback, enums.ProviderUnknown, false
	}
	adapter, ok := r.Resolve(provider)
	return adapter, provider, ok
}

// Providers lists the registered providers, sorted.
func (r *Registry) Providers() []enums.LogisticsProvider {
	out := make([]enums.LogisticsProvider, 0, len(r.adapters))
	for provider := range r.adapters {
		out = append(out, provider)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewRegistryFromConfig builds every integrated adapter from configuration.
func NewRegistryFromConfig(cfg config.CouriersConfig, mapper StatusMapper, lookup OrderLookup) (*Registry, error) {
	opts := []Option{WithTimeout(cfg.HTTPTimeout)}
	adapters := map[enums.LogisticsProvider]Adapter{
		enums.ProviderSteadfast: NewSteadfastAdapter(SteadfastConfig{
			BaseURL:      cfg.Steadfast.BaseURL,
			APIKey:       cfg.Steadfast.APIKey,
			SecretKey:    cfg.Steadfast.SecretKey,
			WebhookToken: cfg.Steadfast.WebhookToken,
		}, mapper, lookup, opts...),
		enums.ProviderPathao: NewPathaoAdapter(PathaoConfig{
			BaseURL:       cfg.Pathao.BaseURL,
			AccessToken:   cfg.Pathao.AccessToken,
			StoreID:       cfg.Pathao.StoreID,
			WebhookSecret: cfg.Pathao.WebhookSecret,
		}, mapper, lookup, opts...),
		enums.ProviderRedX: NewRedXAdapter(RedXConfig{
			BaseURL:       cfg.RedX.BaseURL,
			APIToken:      cfg.RedX.APIToken,
			WebhookSecret: cfg.RedX.WebhookSecret,
		}, mapper, lookup, opts...),
	}
	return NewRegistry(adapters, NewGenericAdapter(lookup))
}
