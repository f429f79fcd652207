package market

import (
	"context"
	"time"
)

// FreshnessThreshold is the maximum staleness a 1m bar may have under
// normal operation before the core considers the feed degraded.
const FreshnessThreshold = 5 * time.Minute

// FreshnessMonitor tracks how stale the ingested feed is for a set of
// symbols. Unlike the teacher's exchange-hours calendar, a crypto market
// never closes, so there is no trading-day/session concept here — only
// a rolling staleness check against the freshness contract in §6.
type FreshnessMonitor struct {
	fetcher *HybridDataFetcher
	now     func() time.Time
}

// NewFreshnessMonitor constructs a monitor backed by the given fetcher.
func NewFreshnessMonitor(fetcher *HybridDataFetcher) *FreshnessMonitor {
	return &FreshnessMonitor{fetcher: fetcher, now: time.Now}
}

// IsStale reports whether the freshest known 1m bar for symbol exceeds
// FreshnessThreshold staleness, or true if no bar could be fetched at all.
func (m *FreshnessMonitor) IsStale(ctx context.Context, symbol string) (bool, time.Duration, error) {
	bar, err := m.fetcher.LatestBar(ctx, symbol, Timeframe1m)
	if err != nil {
		return true, 0, err
	}
	if bar == nil {
		return true, 0, nil
	}
	age := m.now().Sub(bar.Timestamp)
	return age > FreshnessThreshold, age, nil
}
