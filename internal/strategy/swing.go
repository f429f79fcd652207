package strategy

import (
	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/features"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

// SwingDetector identifies momentum breakouts above recent resistance.
//
// Entry rules (all must hold):
//  1. Close exceeds the trailing breakoutLookback-bar high by at least
//     breakoutThreshold percent.
//  2. Current volume is at least volumeSpikeThreshold times the trailing
//     mean volume.
//  3. RSI(14) is at or above rsiBullishMin.
//  4. The 24h price change falls within [minPriceChange24h, maxPriceChange24h].
//  5. The trend gauge (SMA20 vs SMA50 gap, as percent) is at least
//     minTrendStrength.
type SwingDetector struct{}

// NewSwingDetector constructs a Swing detector.
func NewSwingDetector() *SwingDetector { return &SwingDetector{} }

func (s *SwingDetector) Name() config.StrategyName { return config.StrategySwing }

func (s *SwingDetector) Detect(symbol string, bars []market.OhlcBar, snapshot *config.Snapshot, tier config.Tier, regime MarketRegime) (*Setup, error) {
	block := snapshot.Strategies[config.StrategySwing]
	thresholds, ok := block.SwingDetectionByTier[tier]
	if !ok {
		return nil, nil
	}
	if len(bars) < thresholds.BreakoutLookback+1 {
		return nil, nil
	}

	latest := bars[len(bars)-1]
	priorHigh := features.HighestHigh(bars[:len(bars)-1], thresholds.BreakoutLookback)
	if priorHigh <= 0 {
		return nil, nil
	}

	breakoutPct := (latest.Close - priorHigh) / priorHigh * 100
	if breakoutPct < thresholds.BreakoutThreshold {
		return nil, nil
	}

	avgVolume := features.AverageVolume(bars[:len(bars)-1], thresholds.BreakoutLookback)
	volumeRatio := 0.0
	if avgVolume > 0 {
		volumeRatio = latest.Volume / avgVolume
	}
	if volumeRatio < thresholds.VolumeSpikeThreshold {
		return nil, nil
	}

	rsi := features.RSI(bars, 14)
	if rsi < thresholds.RSIBullishMin {
		return nil, nil
	}

	change24h := features.ROC(bars, barsPerDay(bars))
	change24hPct := change24h * 100
	if change24hPct < thresholds.MinPriceChange24h || change24hPct > thresholds.MaxPriceChange24h {
		return nil, nil
	}

	sma20 := features.SMA(bars, 20)
	sma50 := features.SMA(bars, 50)
	trendStrength := 0.0
	if sma50 != 0 {
		trendStrength = (sma20 - sma50) / sma50 * 100
	}
	if trendStrength < thresholds.MinTrendStrength {
		return nil, nil
	}

	return &Setup{
		Strategy:       config.StrategySwing,
		Symbol:         symbol,
		DetectedAt:     latest.Timestamp,
		ReferencePrice: latest.Close,
		SetupData: map[string]float64{
			"breakout_percent": breakoutPct,
			"prior_high":       priorHigh,
			"rsi":              rsi,
			"volume_ratio":     volumeRatio,
			"trend_strength":   trendStrength,
			"change_24h_pct":   change24hPct,
		},
	}, nil
}

// barsPerDay estimates how many bars span 24h from the spacing between
// the last two bars, defaulting to a sane value for gappy data.
func barsPerDay(bars []market.OhlcBar) int {
	if len(bars) < 2 {
		return 1
	}
	spacing := bars[len(bars)-1].Timestamp.Sub(bars[len(bars)-2].Timestamp)
	if spacing <= 0 {
		return 1
	}
	n := int(24 * 60 * 60 / spacing.Seconds())
	if n < 1 {
		n = 1
	}
	if n > len(bars)-1 {
		n = len(bars) - 1
	}
	return n
}
