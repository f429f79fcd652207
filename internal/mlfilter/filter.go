// Package mlfilter implements the optional confidence-scoring stage
// applied to a Setup before it becomes a Decision (MLFilter, C4). A
// Filter never mutates state and never performs I/O beyond loading its
// artifact once at construction.
package mlfilter

import (
	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/features"
	"github.com/nitinkhare/cryptopaper/internal/strategy"
)

// Result is the filter's verdict on a Setup.
type Result struct {
	Confidence             float64
	PredictedTakeProfit    float64
	PredictedStopLoss      float64
	PredictedHoldHours     float64
	PositionSizeMultiplier float64
}

// clampMultiplier bounds the position-size multiplier to [0.5, 1.5].
func clampMultiplier(m float64) float64 {
	if m < 0.5 {
		return 0.5
	}
	if m > 1.5 {
		return 1.5
	}
	return m
}

// Filter scores a detected Setup and proposes exit parameters.
type Filter interface {
	Score(setup *strategy.Setup, feats features.Features, exits config.ExitParams) (Result, error)
}

// PassThrough is the filter used when no model artifact is loaded for a
// strategy: full confidence, tier-default exits unchanged.
type PassThrough struct{}

func (PassThrough) Score(setup *strategy.Setup, feats features.Features, exits config.ExitParams) (Result, error) {
	return Result{
		Confidence:             1.0,
		PredictedTakeProfit:    exits.TakeProfit,
		PredictedStopLoss:      exits.StopLoss,
		PredictedHoldHours:     exits.HoldHours,
		PositionSizeMultiplier: 1.0,
	}, nil
}

// Classify applies the StrategyManager's decision rule to a confidence
// score against tier-configured thresholds.
func Classify(confidence float64, thresholds config.MLThresholds) (strategy.DecisionOutcome, strategy.Reason) {
	switch {
	case confidence >= thresholds.MLConfidenceThreshold:
		return strategy.DecisionTake, strategy.ReasonNone
	case confidence >= thresholds.NearMissThreshold:
		return strategy.DecisionNearMiss, strategy.ReasonConfidenceTooLow
	default:
		return strategy.DecisionSkip, strategy.ReasonConfidenceTooLow
	}
}
