package embeddings

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// LocalProvider generates deterministic pseudo-embeddings without any
// external service. The same text always yields the same unit vector,
// which is enough for routing tests and offline development. Not a
// semantic model.
type LocalProvider struct {
	dimensions int
}

// NewLocalProvider creates a local provider with the given dimension,
// defaulting to models.DefaultEmbeddingDimensions.
func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions <= 0 {
		dimensions = models.DefaultEmbeddingDimensions
	}
	return &LocalProvider{dimensions: dimensions}
}

func (p *LocalProvider) Kind() string    { return "local" }
func (p *LocalProvider) Dimensions() int { return p.dimensions }

// Embed hashes the text into a PRNG seed and draws a unit vector.
func (p *LocalProvider) Embed(_ context.Context, text string) ([]float64, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float64, p.dimensions)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return models.L2Normalize(v), nil
}

func (p *LocalProvider) HealthCheck(context.Context) error { return nil }
