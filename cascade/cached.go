package cascade

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"ll97dash/building"
)

// Cached memoises cascade results by record. Errors are not cached.
type Cached struct {
	next  Predictor
	cache *lru.Cache[building.BuildingRecord, PredictionResult]
}

func NewCached(next Predictor, size int) (*Cached, error) {
	cache, err := lru.New[building.BuildingRecord, PredictionResult](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Predict(record building.BuildingRecord) (PredictionResult, error) {
	if result, ok := c.cache.Get(record); ok {
		return clone(result), nil
	}
	result, err := c.next.Predict(record)
	if err != nil {
		return PredictionResult{}, err
	}
	c.cache.Add(record, clone(result))
	return result, nil
}

// Hit reports whether record is already cached, without touching recency.
func (c *Cached) Hit(record building.BuildingRecord) bool {
	return c.cache.Contains(record)
}

func (c *Cached) Len() int {
	return c.cache.Len()
}

// clone keeps callers from mutating cached results through the pointers.
func clone(r PredictionResult) PredictionResult {
	if r.WillPayIfFined != nil {
		v := *r.WillPayIfFined
		r.WillPayIfFined = &v
	}
	if r.PaidProbability != nil {
		v := *r.PaidProbability
		r.PaidProbability = &v
	}
	return r
}
