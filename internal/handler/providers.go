// Package handler provides HTTP handlers for the API router.
package handler

import (
	"sync"

	"github.com/hpn/hpn-p-router/internal/adapter"
)

// ProviderFactory returns the provider that egresses through proxy. An empty
// proxy means a direct connection.
type ProviderFactory func(proxy string) (adapter.AIProvider, error)

// CachedProviderFactory memoizes build per proxy so each proxy keeps one
// connection pool. Failed builds are not cached.
func CachedProviderFactory(build ProviderFactory) ProviderFactory {
	var (
		mu        sync.Mutex
		providers = make(map[string]adapter.AIProvider)
	)

	return func(proxy string) (adapter.AIProvider, error) {
		mu.Lock()
		defer mu.Unlock()

		if p, ok := providers[proxy]; ok {
			return p, nil
		}

		p, err := build(proxy)
		if err != nil {
			return nil, err
		}
		providers[proxy] = p
		return p, nil
	}
}
