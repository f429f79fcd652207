package strategy

import (
	"time"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

// flatBars builds n hourly bars starting at close=start, each bar a
// still market: open=close=start, fixed volume.
func flatBars(n int, start float64, volume float64) []market.OhlcBar {
	bars := make([]market.OhlcBar, n)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		bars[i] = market.OhlcBar{
			Symbol:    "BTC",
			Timeframe: market.Timeframe1h,
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      start,
			High:      start,
			Low:       start,
			Close:     start,
			Volume:    volume,
		}
	}
	return bars
}

func dcaSnapshot() *config.Snapshot {
	return &config.Snapshot{
		Strategies: map[config.StrategyName]config.StrategyBlock{
			config.StrategyDCA: {
				DCADetectionByTier: map[config.Tier]config.DCADetectionThresholds{
					config.TierMidCap: {
						DropThreshold:     -2.0,
						LookbackHours:     6,
						VolumeRequirement: 1.2,
						RSIMax:            60,
						RegimeBlocklist:   []string{string(RegimeCrash)},
					},
				},
			},
		},
	}
}

func swingSnapshot() *config.Snapshot {
	return &config.Snapshot{
		Strategies: map[config.StrategyName]config.StrategyBlock{
			config.StrategySwing: {
				SwingDetectionByTier: map[config.Tier]config.SwingDetectionThresholds{
					config.TierMidCap: {
						BreakoutThreshold:    1.0,
						VolumeSpikeThreshold: 1.2,
						RSIBullishMin:        0,
						MinPriceChange24h:    -100,
						MaxPriceChange24h:    100,
						MinTrendStrength:     -100,
						BreakoutLookback:     10,
					},
				},
			},
		},
	}
}

func channelSnapshot() *config.Snapshot {
	return &config.Snapshot{
		Strategies: map[config.StrategyName]config.StrategyBlock{
			config.StrategyChannel: {
				ChannelDetectionByTier: map[config.Tier]config.ChannelDetectionThresholds{
					config.TierMidCap: {
						Lookback:           20,
						MinTouches:         2,
						ParallelTolerance:  0.5,
						BuyZone:            0.3,
						MinChannelStrength: 0.5,
					},
				},
			},
		},
	}
}
