package token

import (
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// defaultCacheEntries bounds the number of resolved estimators kept by a
// Provider. Encodings are heavyweight (BPE rank tables), but a process
// talks to a handful of models at most.
const defaultCacheEntries = 32

// CacheStats tracks basic resolution-cache counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Provider resolves and caches Estimators per provider/model pair. Safe
// for concurrent use; concurrent resolutions of the same pair share one
// encoder load.
type Provider struct {
	cache     *lru.Cache[string, *Estimator]
	group     singleflight.Group
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewProvider creates a Provider with the given cache capacity; sizes <= 0
// use the default.
func NewProvider(maxEntries int) *Provider {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	p := &Provider{}
	p.cache, _ = lru.NewWithEvict[string, *Estimator](maxEntries, p.onEvicted)
	return p
}

// ForModel returns an Estimator for the provider/model pair. Resolution
// never fails: unknown models and encoder load errors degrade to the
// heuristic estimator.
func (p *Provider) ForModel(provider, model string) *Estimator {
	key := cacheKey(provider, model)
	if est, ok := p.cache.Get(key); ok {
		p.hits.Add(1)
		return est
	}
	p.misses.Add(1)

	v, _, _ := p.group.Do(key, func() (any, error) {
		if est, ok := p.cache.Get(key); ok {
			return est, nil
		}
		est := &Estimator{enc: newEncoder(provider, model)}
		p.cache.Add(key, est)
		return est, nil
	})
	return v.(*Estimator)
}

// Stats returns a snapshot of the resolution-cache counters.
func (p *Provider) Stats() CacheStats {
	return CacheStats{
		Hits:      p.hits.Load(),
		Misses:    p.misses.Load(),
		Evictions: p.evictions.Load(),
	}
}

func (p *Provider) onEvicted(string, *Estimator) {
	p.evictions.Add(1)
}

func cacheKey(provider, model string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + "/" +
		strings.ToLower(strings.TrimSpace(model))
}

// Heuristic returns an Estimator that always counts with the character
// heuristic, regardless of model. Useful when deterministic, offline
// estimation is required.
func Heuristic() *Estimator {
	return &Estimator{enc: heuristicEncoder{}}
}

var defaultProvider = sync.OnceValue(func() *Provider {
	return NewProvider(defaultCacheEntries)
})

// Default returns the process-wide shared Provider used when callers do not
// supply their own.
func Default() *Provider { return defaultProvider() }
