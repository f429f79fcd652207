package strategy

import (
	"math"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

// ChannelDetector fits a linear channel (two parallel trendlines) to the
// last lookback bars and signals when price sits near the bottom of it.
//
// A channel qualifies when:
//  1. The regression lines through the highs and through the lows have a
//     slope difference at or below parallelTolerance (they are roughly
//     parallel).
//  2. Each line is touched (within a small tolerance) by at least
//     minTouches bars.
//  3. channelStrength — the fraction of bars whose close lies between the
//     two lines — is at or above minChannelStrength.
//
// A Setup triggers when the current close sits within the bottom
// buyZone fraction of the channel's height at the latest bar index.
type ChannelDetector struct{}

// NewChannelDetector constructs a Channel detector.
func NewChannelDetector() *ChannelDetector { return &ChannelDetector{} }

func (c *ChannelDetector) Name() config.StrategyName { return config.StrategyChannel }

func (c *ChannelDetector) Detect(symbol string, bars []market.OhlcBar, snapshot *config.Snapshot, tier config.Tier, regime MarketRegime) (*Setup, error) {
	block := snapshot.Strategies[config.StrategyChannel]
	thresholds, ok := block.ChannelDetectionByTier[tier]
	if !ok {
		return nil, nil
	}
	if len(bars) < thresholds.Lookback {
		return nil, nil
	}

	window := bars[len(bars)-thresholds.Lookback:]
	highSlope, highIntercept := linearFit(highs(window))
	lowSlope, lowIntercept := linearFit(lows(window))

	slopeDiff := math.Abs(highSlope - lowSlope)
	if slopeDiff > thresholds.ParallelTolerance {
		return nil, nil
	}

	touchTolerance := 0.003 // 0.3% of price, a wick "touching" the line
	upperTouches, lowerTouches := 0, 0
	withinChannel := 0
	for i, b := range window {
		upperAt := highSlope*float64(i) + highIntercept
		lowerAt := lowSlope*float64(i) + lowIntercept
		if upperAt > 0 && math.Abs(b.High-upperAt)/upperAt <= touchTolerance {
			upperTouches++
		}
		if lowerAt > 0 && math.Abs(b.Low-lowerAt)/lowerAt <= touchTolerance {
			lowerTouches++
		}
		if b.Close >= lowerAt && b.Close <= upperAt {
			withinChannel++
		}
	}
	if upperTouches < thresholds.MinTouches || lowerTouches < thresholds.MinTouches {
		return nil, nil
	}

	channelStrength := float64(withinChannel) / float64(len(window))
	if channelStrength < thresholds.MinChannelStrength {
		return nil, nil
	}

	lastIdx := len(window) - 1
	channelTop := highSlope*float64(lastIdx) + highIntercept
	channelBottom := lowSlope*float64(lastIdx) + lowIntercept
	if channelTop <= channelBottom {
		return nil, nil
	}

	latest := window[lastIdx]
	positionInChannel := (latest.Close - channelBottom) / (channelTop - channelBottom)
	if positionInChannel > thresholds.BuyZone {
		return nil, nil
	}

	return &Setup{
		Strategy:       config.StrategyChannel,
		Symbol:         symbol,
		DetectedAt:     latest.Timestamp,
		ReferencePrice: latest.Close,
		SetupData: map[string]float64{
			"channel_top":         channelTop,
			"channel_bottom":      channelBottom,
			"position_in_channel": positionInChannel,
			"strength":            channelStrength,
		},
	}, nil
}

// linearFit returns the least-squares slope and intercept of y against
// its bar index 0..len(y)-1.
func linearFit(y []float64) (slope, intercept float64) {
	n := float64(len(y))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func highs(bars []market.OhlcBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lows(bars []market.OhlcBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}
