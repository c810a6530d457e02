package repository

import (
	"context"
	"encoding/json"
	"errors"

	"compliance-analytics/internal/cache"
)

// cacheGet decodes a cached value into dst. Backend failures count as misses.
func (r *AnalyticsRepository) cacheGet(ctx context.Context, key string, dst any) bool {
	if r.cache == nil {
		return false
	}
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		return false
	}
	return true
}

func (r *AnalyticsRepository) cacheSet(ctx context.Context, key string, value any) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(raw), r.cacheTTL); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
