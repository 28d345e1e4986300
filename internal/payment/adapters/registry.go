// Package adapters holds the provider adapter registry. Adapters are
// constructed once at startup from static config and looked up per
// request by provider name.
package adapters

import (
	"github.com/appforge/appforge/internal/payment/domain"
)

type Registry struct {
	adapters map[domain.Provider]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[domain.Provider]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[adapter.Provider()] = adapter
	}
	return registry
}

func (r *Registry) Get(provider domain.Provider) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}
