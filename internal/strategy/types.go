// Package strategy implements the three detectors (DCA, Swing, Channel)
// plus a SimpleRules fallback: pure functions from an OHLC slice and
// tier configuration to an optional Setup descriptor (StrategyDetectors,
// C3). Each detector is a value implementing the Detector interface —
// there is no class hierarchy, just a shared capability.
package strategy

import (
	"time"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

// MarketRegime classifies overall market conditions, used to gate DCA
// entries during a crash.
type MarketRegime string

const (
	RegimeBull     MarketRegime = "BULL"
	RegimeSideways MarketRegime = "SIDEWAYS"
	RegimeBear     MarketRegime = "BEAR"
	RegimeCrash    MarketRegime = "CRASH"
)

// DecisionOutcome is the classifier's verdict on a (symbol, strategy) pair.
type DecisionOutcome string

const (
	DecisionTake     DecisionOutcome = "TAKE"
	DecisionNearMiss DecisionOutcome = "NEAR_MISS"
	DecisionSkip     DecisionOutcome = "SKIP"
)

// Reason enumerates why a Decision landed where it did.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNoSetup             Reason = "no_setup"
	ReasonDataUnavailable     Reason = "data_unavailable"
	ReasonInsufficientData    Reason = "insufficient_data"
	ReasonCellTimeout         Reason = "cell_timeout"
	ReasonTickCancelled       Reason = "tick_cancelled"
	ReasonConfidenceTooLow    Reason = "confidence_too_low"
	ReasonMaxPositionsReached Reason = "max_positions_reached"
	ReasonMaxPerSymbol        Reason = "max_per_symbol_reached"
	ReasonMaxPerStrategy      Reason = "max_per_strategy_reached"
	ReasonDailyLossLimit      Reason = "daily_loss_limit_reached"
	ReasonInsufficientBalance Reason = "insufficient_available_balance"
)

// Setup is produced by a detector. Ephemeral — it lives only inside the
// scan cycle that created it.
type Setup struct {
	Strategy                  config.StrategyName
	Symbol                    string
	DetectedAt                time.Time
	ReferencePrice            float64
	SetupData                 map[string]float64
	SuggestedPositionNotional float64
}

// Detector is the shared capability every strategy implements: a pure,
// side-effect-free function from (symbol, bars, tierConfig) to an
// optional Setup.
type Detector interface {
	Name() config.StrategyName
	Detect(symbol string, bars []market.OhlcBar, snapshot *config.Snapshot, tier config.Tier, regime MarketRegime) (*Setup, error)
}
