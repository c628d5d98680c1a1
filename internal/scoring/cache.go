package scoring

import (
	"strings"

	"causalscore/internal/frame"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"
)

// DefaultCacheSize bounds the number of frames whose predictions are kept
const DefaultCacheSize = 16

type cacheKey struct {
	frame    uuid.UUID
	features string
}

// predictionCache memoises propensity predictions per frame. Cached matrices
// are shared between callers and must not be modified.
type predictionCache struct {
	cache   *lru.Cache[cacheKey, *mat.Dense]
	metrics *Metrics
}

func newPredictionCache(size int, metrics *Metrics) (*predictionCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, *mat.Dense](size)
	if err != nil {
		return nil, err
	}
	return &predictionCache{cache: cache, metrics: metrics}, nil
}

func (c *predictionCache) getOrPredict(df *frame.Frame, features []string, predict func() (*mat.Dense, error)) (*mat.Dense, error) {
	key := cacheKey{frame: df.ID(), features: strings.Join(features, "\x00")}
	if m, ok := c.cache.Get(key); ok {
		c.metrics.CacheHits.Inc()
		return m, nil
	}
	c.metrics.CacheMisses.Inc()
	m, err := predict()
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, m)
	return m, nil
}
