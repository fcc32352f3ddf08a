// Package embeddings provides the embedding provider registry, the
// bundled providers (local deterministic, Ollama, OpenAI), and the
// intent embedding service with its TTL cache.
package embeddings

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentgate/agentgate/gateway/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// Registry holds named embedding providers. Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]contracts.EmbeddingProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]contracts.EmbeddingProvider),
	}
}

// Register adds a provider under the given name. Overwrites if exists.
func (r *Registry) Register(name string, provider contracts.EmbeddingProvider) {
	r.mu.Lock()
	r.providers[name] = provider
	r.mu.Unlock()
	log.Info().Str("name", name).Str("kind", provider.Kind()).Int("dims", provider.Dimensions()).Msg("Embedding provider registered")
}

// Get returns the provider by name, or error if not found.
func (r *Registry) Get(name string) (contracts.EmbeddingProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("embedding provider not found: %s", name)
	}
	return p, nil
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// HealthCheckAll pings every registered provider and returns errors keyed by name.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	snapshot := make(map[string]contracts.EmbeddingProvider, len(r.providers))
	for k, v := range r.providers {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(snapshot))
	for name, provider := range snapshot {
		results[name] = provider.HealthCheck(ctx)
	}
	return results
}
