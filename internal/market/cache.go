package market

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

const cacheShardCount = 16

type cacheKey struct {
	symbol        string
	timeframe     Timeframe
	bucketedFromT int64
	bucketedToT   int64
}

type cacheEntry struct {
	key       cacheKey
	bars      []OhlcBar
	expiresAt time.Time
}

// shardedLRU is a fixed-capacity, TTL-aware LRU cache split across
// cacheShardCount shards, each guarded by its own mutex so that a hot
// symbol never blocks lookups for an unrelated one. Capacity is the
// per-shard entry limit; eviction is strict LRU within a shard.
type shardedLRU struct {
	shards [cacheShardCount]*lruShard
}

type lruShard struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[cacheKey]*list.Element
}

func newShardedLRU(totalCapacity int) *shardedLRU {
	perShard := totalCapacity / cacheShardCount
	if perShard < 1 {
		perShard = 1
	}
	s := &shardedLRU{}
	for i := range s.shards {
		s.shards[i] = &lruShard{
			capacity: perShard,
			ll:       list.New(),
			index:    make(map[cacheKey]*list.Element),
		}
	}
	return s
}

func (c *shardedLRU) shardFor(key cacheKey) *lruShard {
	h := fnv.New32a()
	h.Write([]byte(key.symbol))
	h.Write([]byte(key.timeframe))
	return c.shards[h.Sum32()%cacheShardCount]
}

func (c *shardedLRU) get(key cacheKey, now time.Time) ([]OhlcBar, bool) {
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	el, ok := shard.index[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if now.After(entry.expiresAt) {
		shard.ll.Remove(el)
		delete(shard.index, key)
		return nil, false
	}
	shard.ll.MoveToFront(el)
	return entry.bars, true
}

func (c *shardedLRU) put(key cacheKey, bars []OhlcBar, ttl time.Duration, now time.Time) {
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if el, ok := shard.index[key]; ok {
		shard.ll.MoveToFront(el)
		el.Value.(*cacheEntry).bars = bars
		el.Value.(*cacheEntry).expiresAt = now.Add(ttl)
		return
	}

	entry := &cacheEntry{key: key, bars: bars, expiresAt: now.Add(ttl)}
	el := shard.ll.PushFront(entry)
	shard.index[key] = el

	if shard.ll.Len() > shard.capacity {
		oldest := shard.ll.Back()
		if oldest != nil {
			shard.ll.Remove(oldest)
			delete(shard.index, oldest.Value.(*cacheEntry).key)
		}
	}
}

// bucket rounds a timestamp down to a coarse bucket so that near-identical
// queries (jittered by a few seconds) share one cache entry.
func bucket(t time.Time, width time.Duration) int64 {
	return t.Truncate(width).Unix()
}

// ttlFor returns the cache TTL for a window ending at windowEnd, observed
// at now. Shorter for windows ending "now"; longer for stale windows.
func ttlFor(windowEnd, now time.Time) time.Duration {
	age := now.Sub(windowEnd)
	switch {
	case age <= time.Minute:
		return 5 * time.Second
	case age <= time.Hour:
		return 30 * time.Second
	case age <= 24*time.Hour:
		return 2 * time.Minute
	default:
		return 5 * time.Minute
	}
}
