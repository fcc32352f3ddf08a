// Package credentials resolves the per-tool credential ids the router
// selects to decrypted secrets, with a short-lived cache in front of
// the backing store.
package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/contracts"
	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// envPrefix lets static deployments supply secrets as
// GATE_CREDENTIAL_<ID> variables.
const envPrefix = "GATE_CREDENTIAL_"

// StaticResolver serves secrets from a fixed map plus the process
// environment. Ids are matched case-sensitively against the map and
// upper-cased (with dashes folded to underscores) against the env.
type StaticResolver struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewStaticResolver creates a resolver over the given id→value map.
func NewStaticResolver(secrets map[string]string) *StaticResolver {
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return &StaticResolver{secrets: secrets}
}

func (r *StaticResolver) Kind() string { return "static" }

// Set installs or replaces a secret.
func (r *StaticResolver) Set(id, value string) {
	r.mu.Lock()
	r.secrets[id] = value
	r.mu.Unlock()
}

func (r *StaticResolver) Resolve(_ context.Context, credentialID string) (*models.Secret, error) {
	r.mu.RLock()
	value, ok := r.secrets[credentialID]
	r.mu.RUnlock()

	if !ok {
		value, ok = os.LookupEnv(envKey(credentialID))
	}
	if !ok {
		return nil, missingError(credentialID)
	}
	return &models.Secret{
		ID:         credentialID,
		Value:      value,
		ResolvedAt: time.Now(),
		Backend:    r.Kind(),
	}, nil
}

func (r *StaticResolver) HealthCheck(context.Context) error { return nil }

func envKey(credentialID string) string {
	key := strings.ToUpper(credentialID)
	key = strings.ReplaceAll(key, "-", "_")
	return envPrefix + key
}

func missingError(credentialID string) error {
	return models.NewError(models.KindCredentialMissing, "CREDENTIAL_MISSING",
		fmt.Sprintf("no secret found for credential id %s", credentialID)).
		WithSuggestion("register the credential or set " + envKey(credentialID))
}

// ── Caching ──────────────────────────────────────────────────

type cachedSecret struct {
	secret    *models.Secret
	expiresAt time.Time
}

// CachingResolver memoizes successful lookups for a short TTL. Misses
// and errors are never cached.
type CachingResolver struct {
	inner contracts.CredentialResolver
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

// NewCachingResolver wraps inner with a TTL cache.
func NewCachingResolver(inner contracts.CredentialResolver, ttl time.Duration) *CachingResolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachingResolver{
		inner: inner,
		ttl:   ttl,
		cache: make(map[string]cachedSecret),
	}
}

func (r *CachingResolver) Kind() string { return r.inner.Kind() }

func (r *CachingResolver) Resolve(ctx context.Context, credentialID string) (*models.Secret, error) {
	now := time.Now()

	r.mu.RLock()
	c, ok := r.cache[credentialID]
	r.mu.RUnlock()
	if ok && now.Before(c.expiresAt) {
		return c.secret, nil
	}

	secret, err := r.inner.Resolve(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[credentialID] = cachedSecret{secret: secret, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()
	return secret, nil
}

func (r *CachingResolver) HealthCheck(ctx context.Context) error {
	return r.inner.HealthCheck(ctx)
}

// Invalidate drops one cached secret, forcing the next resolve through.
func (r *CachingResolver) Invalidate(credentialID string) {
	r.mu.Lock()
	delete(r.cache, credentialID)
	r.mu.Unlock()
}
