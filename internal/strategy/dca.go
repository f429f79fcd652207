package strategy

import (
	"time"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/features"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

// DCADetector identifies oversold dips worth averaging into.
//
// Entry rules (all must hold):
//  1. Current close has fallen by at least |dropThreshold| percent from
//     the highest close in the lookback window.
//  2. Current volume is at least volumeRequirement times the trailing
//     mean volume.
//  3. RSI(14) is at or below rsiMax.
//  4. The prevailing market regime is not in the tier's regime blocklist.
type DCADetector struct{}

// NewDCADetector constructs a DCA detector.
func NewDCADetector() *DCADetector { return &DCADetector{} }

func (d *DCADetector) Name() config.StrategyName { return config.StrategyDCA }

func (d *DCADetector) Detect(symbol string, bars []market.OhlcBar, snapshot *config.Snapshot, tier config.Tier, regime MarketRegime) (*Setup, error) {
	block := snapshot.Strategies[config.StrategyDCA]
	thresholds, ok := block.DCADetectionByTier[tier]
	if !ok {
		return nil, nil
	}

	if regimeBlocked(regime, thresholds.RegimeBlocklist) {
		return nil, nil
	}

	window := barsWithinHours(bars, thresholds.LookbackHours)
	if len(window) < 2 {
		return nil, nil
	}

	latest := window[len(window)-1]
	referenceHigh := features.HighestClose(window, len(window))
	if referenceHigh <= 0 {
		return nil, nil
	}

	dropPercent := (latest.Close - referenceHigh) / referenceHigh * 100
	if dropPercent > -absFloat(thresholds.DropThreshold) {
		return nil, nil
	}

	avgVolume := features.AverageVolume(window, len(window))
	volumeRatio := 0.0
	if avgVolume > 0 {
		volumeRatio = latest.Volume / avgVolume
	}
	if volumeRatio < thresholds.VolumeRequirement {
		return nil, nil
	}

	rsi := features.RSI(bars, 14)
	if rsi > thresholds.RSIMax {
		return nil, nil
	}

	supportPct, _ := features.SupportResistanceDistance(bars, 50)

	return &Setup{
		Strategy:       config.StrategyDCA,
		Symbol:         symbol,
		DetectedAt:     latest.Timestamp,
		ReferencePrice: latest.Close,
		SetupData: map[string]float64{
			"drop_percent":     dropPercent,
			"reference_high":   referenceHigh,
			"rsi":              rsi,
			"volume_ratio":     volumeRatio,
			"support_distance": supportPct,
		},
	}, nil
}

func regimeBlocked(regime MarketRegime, blocklist []string) bool {
	for _, r := range blocklist {
		if MarketRegime(r) == regime {
			return true
		}
	}
	return false
}

func barsWithinHours(bars []market.OhlcBar, hours int) []market.OhlcBar {
	if len(bars) == 0 || hours <= 0 {
		return nil
	}
	cutoff := bars[len(bars)-1].Timestamp.Add(-time.Duration(hours) * time.Hour)
	start := 0
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Timestamp.Before(cutoff) {
			start = i + 1
			break
		}
	}
	return bars[start:]
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
