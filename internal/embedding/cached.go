package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached memoizes a provider's vectors by text for ttl.
type Cached struct {
	next  Provider
	cache *cache.Cache
}

func NewCached(next Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Dimension() int {
	return c.next.Dimension()
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return copyVector(v.([]float32)), nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(text, copyVector(vec))
	return vec, nil
}

// Len reports how many vectors are cached.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
