package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrViewUnavailable is returned by a Store implementation when a
// materialized view is mid-refresh or otherwise not queryable; the
// fetcher falls back to the base table on this error.
var ErrViewUnavailable = errors.New("market: view unavailable")

// retryDelays are the waits between store attempts: one initial try plus
// one retry after each delay.
var retryDelays = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

const cacheBucketWidth = 30 * time.Second

// FetcherConfig controls cache sizing and optional L2 behavior.
type FetcherConfig struct {
	CacheCapacity int // total entries across all shards
}

// HybridDataFetcher serves getRecent/getSlice with bounded latency by
// routing to the cheapest source for the requested window's age, caching
// results in a sharded in-process LRU, and optionally fronting that cache
// with a shared Redis layer.
type HybridDataFetcher struct {
	store  Store
	cache  *shardedLRU
	redis  *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewHybridDataFetcher constructs a fetcher. redisClient may be nil, in
// which case the fetcher degrades to local-cache-only.
func NewHybridDataFetcher(store Store, redisClient *redis.Client, cfg FetcherConfig, logger *zap.Logger) *HybridDataFetcher {
	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = 4096
	}
	return &HybridDataFetcher{
		store:  store,
		cache:  newShardedLRU(capacity),
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetRecent returns bars for the last lookbackHours, newest-bound "now".
func (f *HybridDataFetcher) GetRecent(ctx context.Context, symbol string, tf Timeframe, lookbackHours int) ([]OhlcBar, error) {
	if lookbackHours <= 0 {
		return nil, fmt.Errorf("market: getRecent: lookbackHours must be > 0, got %d", lookbackHours)
	}
	now := f.now()
	from := now.Add(-time.Duration(lookbackHours) * time.Hour)
	return f.GetSlice(ctx, symbol, tf, from, now)
}

// GetSlice returns chronologically ascending, de-duplicated bars for
// [fromT, toT]. It routes to the hot/warm/cold source by the age of toT,
// checking the cache first and falling back to the store with retry.
func (f *HybridDataFetcher) GetSlice(ctx context.Context, symbol string, tf Timeframe, fromT, toT time.Time) ([]OhlcBar, error) {
	if !fromT.Before(toT) {
		return nil, fmt.Errorf("market: getSlice: fromT must be before toT")
	}

	now := f.now()
	key := cacheKey{
		symbol:        symbol,
		timeframe:     tf,
		bucketedFromT: bucket(fromT, cacheBucketWidth),
		bucketedToT:   bucket(toT, cacheBucketWidth),
	}

	if bars, ok := f.cache.get(key, now); ok {
		return bars, nil
	}

	if f.redis != nil {
		if bars, ok := f.getFromRedis(ctx, key); ok {
			f.cache.put(key, bars, ttlFor(toT, now), now)
			return bars, nil
		}
	}

	bars, source, err := f.queryWithRouting(ctx, symbol, tf, fromT, toT, now)
	if err != nil {
		return nil, err
	}

	bars = dedupeSorted(bars)
	ttl := ttlFor(toT, now)
	f.cache.put(key, bars, ttl, now)
	if f.redis != nil {
		f.putToRedis(ctx, key, bars, ttl)
	}

	f.logger.Debug("market: slice served",
		zap.String("symbol", symbol),
		zap.String("timeframe", string(tf)),
		zap.String("source", string(source)),
		zap.Int("bars", len(bars)),
	)

	return bars, nil
}

// LatestBar returns the single freshest bar, used by the exit loop.
func (f *HybridDataFetcher) LatestBar(ctx context.Context, symbol string, tf Timeframe) (*OhlcBar, error) {
	var bar *OhlcBar
	var err error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		bar, err = f.store.LatestBar(ctx, symbol, tf)
		if err == nil {
			return bar, nil
		}
		if attempt == len(retryDelays) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelays[attempt]):
		}
	}
	return nil, fmt.Errorf("market: latestBar %s/%s: %w", symbol, tf, err)
}

// routeSource picks the cheapest source relation for a window ending at
// windowEnd, observed at now.
func routeSource(windowEnd, now time.Time) Source {
	age := now.Sub(windowEnd)
	switch {
	case age <= 24*time.Hour:
		return SourceToday
	case age <= 7*24*time.Hour:
		return SourceRecent
	default:
		return SourceBase
	}
}

func (f *HybridDataFetcher) queryWithRouting(ctx context.Context, symbol string, tf Timeframe, fromT, toT, now time.Time) ([]OhlcBar, Source, error) {
	source := routeSource(toT, now)

	query := func(s Source) ([]OhlcBar, error) {
		switch s {
		case SourceToday:
			return f.store.QueryTodayView(ctx, symbol, tf, fromT, toT)
		case SourceRecent:
			return f.store.QueryRecentView(ctx, symbol, tf, fromT, toT)
		default:
			return f.store.QueryBase(ctx, symbol, tf, fromT, toT)
		}
	}

	var bars []OhlcBar
	var err error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		bars, err = query(source)
		if err == nil {
			return bars, source, nil
		}
		if errors.Is(err, ErrViewUnavailable) && source != SourceBase {
			f.logger.Warn("market: view unavailable, falling back to base table",
				zap.String("symbol", symbol), zap.String("attempted_source", string(source)))
			source = SourceBase
			bars, err = query(source)
			if err == nil {
				return bars, source, nil
			}
		}
		if attempt == len(retryDelays) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, source, ctx.Err()
		case <-time.After(retryDelays[attempt]):
		}
	}
	return nil, source, fmt.Errorf("market: getSlice %s/%s: %w", symbol, tf, err)
}

func dedupeSorted(bars []OhlcBar) []OhlcBar {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	out := bars[:0]
	var lastTs time.Time
	first := true
	for _, b := range bars {
		if !first && b.Timestamp.Equal(lastTs) {
			continue
		}
		out = append(out, b)
		lastTs = b.Timestamp
		first = false
	}
	return out
}

func redisKey(key cacheKey) string {
	return fmt.Sprintf("ohlc:%s:%s:%d:%d", key.symbol, key.timeframe, key.bucketedFromT, key.bucketedToT)
}

func (f *HybridDataFetcher) getFromRedis(ctx context.Context, key cacheKey) ([]OhlcBar, bool) {
	data, err := f.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var bars []OhlcBar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, false
	}
	return bars, true
}

func (f *HybridDataFetcher) putToRedis(ctx context.Context, key cacheKey, bars []OhlcBar, ttl time.Duration) {
	data, err := json.Marshal(bars)
	if err != nil {
		return
	}
	if err := f.redis.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		f.logger.Warn("market: redis L2 write failed", zap.Error(err))
	}
}
