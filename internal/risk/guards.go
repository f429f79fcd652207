// Package risk implements the hard guardrails PaperTrader applies to a
// TAKE decision before it is allowed to open a position. Guards run in
// the fixed order spec §4.7 names; the first violated guard wins.
package risk

import (
	"fmt"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/strategy"
)

// Counts is a snapshot of position-table occupancy the guards check
// against. The caller (PaperTrader) computes this under its table
// mutex immediately before evaluating guards, so it reflects the exact
// state the open decision will be serialized against.
type Counts struct {
	OpenPositions          int
	OpenPositionsForSymbol int
	PositionsForStrategy   int
	DailyLossPct           float64 // negative means a loss
	AvailableBalance       float64
}

// Proposal is the position a TAKE decision wants to open.
type Proposal struct {
	Symbol           string
	Strategy         config.StrategyName
	ProposedNotional float64
}

// Evaluate runs every guard in spec order and returns the first reason
// that rejects the proposal, or ReasonNone if every guard passes.
func Evaluate(counts Counts, proposal Proposal, limits config.RiskManagement) strategy.Reason {
	if counts.OpenPositions >= limits.MaxOpenPositions {
		return strategy.ReasonMaxPositionsReached
	}
	if counts.OpenPositionsForSymbol >= limits.MaxPerSymbol {
		return strategy.ReasonMaxPerSymbol
	}
	if counts.PositionsForStrategy >= limits.MaxPerStrategy {
		return strategy.ReasonMaxPerStrategy
	}
	if counts.DailyLossPct <= -limits.MaxDailyLossPct {
		return strategy.ReasonDailyLossLimit
	}
	if counts.AvailableBalance < proposal.ProposedNotional {
		return strategy.ReasonInsufficientBalance
	}
	return strategy.ReasonNone
}

// ErrRejected is returned by callers that prefer an error value to a
// bare Reason, e.g. when logging the guard failure.
type ErrRejected struct {
	Reason strategy.Reason
}

func (e ErrRejected) Error() string {
	return fmt.Sprintf("risk: proposal rejected: %s", e.Reason)
}
