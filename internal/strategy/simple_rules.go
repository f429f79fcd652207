package strategy

import (
	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/features"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

// SimpleRules is a lightweight stand-in for the full detector set, used
// only when the ML filter is disabled. It collapses each strategy's
// entry condition down to its single strongest signal, skipping the
// volume/trend/channel-shape corroboration the full detectors require.
// The StrategyManager selects this path per symbol when MLFilter is a
// PassThrough and the corresponding full detector returned no Setup —
// it never runs alongside a full detector for the same strategy.
type SimpleRules struct {
	strategy config.StrategyName
}

// NewSimpleDCARule builds the simplified DCA fallback: close down at
// least dropThreshold percent from the lookback high.
func NewSimpleDCARule() *SimpleRules { return &SimpleRules{strategy: config.StrategyDCA} }

// NewSimpleSwingRule builds the simplified Swing fallback: close above
// the lookback high by at least breakoutThreshold percent.
func NewSimpleSwingRule() *SimpleRules { return &SimpleRules{strategy: config.StrategySwing} }

// NewSimpleChannelRule builds the simplified Channel fallback: close
// within the bottom buyZone fraction of the lookback high/low range.
func NewSimpleChannelRule() *SimpleRules { return &SimpleRules{strategy: config.StrategyChannel} }

func (s *SimpleRules) Name() config.StrategyName { return s.strategy }

func (s *SimpleRules) Detect(symbol string, bars []market.OhlcBar, snapshot *config.Snapshot, tier config.Tier, regime MarketRegime) (*Setup, error) {
	switch s.strategy {
	case config.StrategyDCA:
		return s.detectDCA(symbol, bars, snapshot, tier)
	case config.StrategySwing:
		return s.detectSwing(symbol, bars, snapshot, tier)
	case config.StrategyChannel:
		return s.detectChannel(symbol, bars, snapshot, tier)
	default:
		return nil, nil
	}
}

func (s *SimpleRules) detectDCA(symbol string, bars []market.OhlcBar, snapshot *config.Snapshot, tier config.Tier) (*Setup, error) {
	thresholds, ok := snapshot.Strategies[config.StrategyDCA].DCADetectionByTier[tier]
	if !ok || len(bars) < 2 {
		return nil, nil
	}
	latest := bars[len(bars)-1]
	lookback := barsWithinHours(bars, thresholds.LookbackHours)
	high := features.HighestClose(lookback, len(lookback))
	if high <= 0 {
		return nil, nil
	}
	dropPercent := (latest.Close - high) / high * 100
	if dropPercent > -absFloat(thresholds.DropThreshold) {
		return nil, nil
	}
	return &Setup{
		Strategy:       config.StrategyDCA,
		Symbol:         symbol,
		DetectedAt:     latest.Timestamp,
		ReferencePrice: latest.Close,
		SetupData: map[string]float64{
			"drop_percent":   dropPercent,
			"reference_high": high,
		},
	}, nil
}

func (s *SimpleRules) detectSwing(symbol string, bars []market.OhlcBar, snapshot *config.Snapshot, tier config.Tier) (*Setup, error) {
	thresholds, ok := snapshot.Strategies[config.StrategySwing].SwingDetectionByTier[tier]
	if !ok || len(bars) < thresholds.BreakoutLookback+1 {
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
	return &Setup{
		Strategy:       config.StrategySwing,
		Symbol:         symbol,
		DetectedAt:     latest.Timestamp,
		ReferencePrice: latest.Close,
		SetupData: map[string]float64{
			"breakout_percent": breakoutPct,
			"prior_high":       priorHigh,
		},
	}, nil
}

func (s *SimpleRules) detectChannel(symbol string, bars []market.OhlcBar, snapshot *config.Snapshot, tier config.Tier) (*Setup, error) {
	thresholds, ok := snapshot.Strategies[config.StrategyChannel].ChannelDetectionByTier[tier]
	if !ok || len(bars) < thresholds.Lookback {
		return nil, nil
	}
	window := bars[len(bars)-thresholds.Lookback:]
	high := features.HighestHigh(window, len(window))
	low := features.LowestLow(window, len(window))
	if high <= low {
		return nil, nil
	}
	latest := window[len(window)-1]
	positionInRange := (latest.Close - low) / (high - low)
	if positionInRange > thresholds.BuyZone {
		return nil, nil
	}
	return &Setup{
		Strategy:       config.StrategyChannel,
		Symbol:         symbol,
		DetectedAt:     latest.Timestamp,
		ReferencePrice: latest.Close,
		SetupData: map[string]float64{
			"channel_top":         high,
			"channel_bottom":      low,
			"position_in_channel": positionInRange,
		},
	}, nil
}
