package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/contracts"
	"github.com/agentgate/agentgate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// Service turns intents and tool descriptions into comparable unit
// vectors through one provider, memoized in a TTL cache. Intent keys
// include the canonical parameter rendering so that semantically
// different calls never collide.
type Service struct {
	provider contracts.EmbeddingProvider
	cache    *Cache
}

// NewService creates an embedding service over the given provider.
func NewService(provider contracts.EmbeddingProvider, cacheTTL time.Duration) *Service {
	return &Service{
		provider: provider,
		cache:    NewCache(cacheTTL),
	}
}

// Provider returns the underlying provider.
func (s *Service) Provider() contracts.EmbeddingProvider { return s.provider }

// CacheStats returns the cache size and hit rate for stats reporting.
func (s *Service) CacheStats() (size int, hitRate float64) {
	return s.cache.Len(), s.cache.HitRate()
}

// EmbedIntent returns the unit vector for a normalized intent.
func (s *Service) EmbedIntent(ctx context.Context, intent models.NormalizedIntent) ([]float64, error) {
	key := fmt.Sprintf("intent|%s|%s|%s", intent.Category, intent.Action, models.CanonicalJSON(intent.Parameters))
	text := fmt.Sprintf("Action: %s\nCategory: %s\nTarget: %s\nParameters: %s",
		intent.Action, intent.Category, intent.Target, models.CanonicalJSON(intent.Parameters))
	return s.embed(ctx, key, text)
}

// EmbedToolDescription returns the unit vector for a catalog entry.
// Tool vectors are keyed by id alone: descriptions change only on
// catalog updates, which outlive the cache TTL.
func (s *Service) EmbedToolDescription(ctx context.Context, tool models.ToolDefinition) ([]float64, error) {
	key := "tool|" + tool.ID
	text := fmt.Sprintf("%s: %s", tool.Name, tool.Description)
	return s.embed(ctx, key, text)
}

// Similarity is the cosine similarity of two service-produced vectors.
func (s *Service) Similarity(a, b []float64) (float64, error) {
	return models.CosineSimilarity(a, b)
}

func (s *Service) embed(ctx context.Context, key, text string) ([]float64, error) {
	now := time.Now()
	if v, ok := s.cache.Get(key, now); ok {
		return v, nil
	}

	v, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed via %s: %w", s.provider.Kind(), err)
	}
	if len(v) != s.provider.Dimensions() {
		return nil, models.NewError(models.KindDimensionMismatch, "DIMENSION_MISMATCH",
			fmt.Sprintf("provider %s returned %d dimensions, expected %d", s.provider.Kind(), len(v), s.provider.Dimensions()))
	}

	v = models.L2Normalize(v)
	s.cache.Put(key, v, now)

	log.Debug().Str("provider", s.provider.Kind()).Int("dims", len(v)).Msg("Embedding generated")
	return v, nil
}
