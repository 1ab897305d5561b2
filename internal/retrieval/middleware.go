package retrieval

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Limited spaces calls to the wrapped Searcher. One limiter value is shared
// by every evaluator that searches through it.
type Limited struct {
	next    Searcher
	limiter *rate.Limiter
}

// WithRateLimit allows one search per interval. A zero interval disables
// limiting.
func WithRateLimit(next Searcher, interval time.Duration) *Limited {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (l *Limited) Search(ctx context.Context, query string) ([]Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Search(ctx, query)
}

// Cached memoizes successful searches by cleaned query for a TTL.
type Cached struct {
	next  Searcher
	cache *expirable.LRU[string, []Result]
}

func WithCache(next Searcher, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 128
	}
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, []Result](size, nil, ttl),
	}
}

func (c *Cached) Search(ctx context.Context, query string) ([]Result, error) {
	key := CleanQuery(query)
	if key == "" {
		return nil, ErrEmptyQuery
	}
	if hit, ok := c.cache.Get(key); ok {
		return hit, nil
	}
	res, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, res)
	return res, nil
}

// Len reports the number of cached queries.
func (c *Cached) Len() int { return c.cache.Len() }
