package brainy

import (
	"context"

	"github.com/brainyhq/brainy/pkg/cache"
	"github.com/brainyhq/brainy/pkg/embedding"
)

// cachingEmbedder routes embedding calls through the unified cache so a
// repeated input (a popular search phrase, or the synthesized text behind
// an unvectorized add_verb) is embedded once and shared, coalescing
// concurrent requests for the same input.
type cachingEmbedder struct {
	embedder embedding.Embedder
	cache    *cache.Cache
}

func (c *cachingEmbedder) Dimensions() int { return c.embedder.Dimensions() }

func (c *cachingEmbedder) Embed(ctx context.Context, input string) ([]float32, error) {
	e, err := c.cache.GetOrLoad(ctx, "embed:"+input, cache.TypeEmbedding, func(ctx context.Context) (any, int64, float64, error) {
		vec, err := c.embedder.Embed(ctx, input)
		if err != nil {
			return nil, 0, 0, err
		}
		return vec, int64(len(vec) * 4), 1, nil
	})
	if err != nil {
		return nil, err
	}
	return e.Payload.([]float32), nil
}

var _ embedding.Embedder = (*cachingEmbedder)(nil)
