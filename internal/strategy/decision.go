package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/features"
)

// Decision is the full, loggable record of one (symbol, strategy) scan
// cell: the setup found (if any), the ML verdict applied to it, and the
// outcome the StrategyManager reached. One Decision is emitted per cell,
// regardless of outcome.
type Decision struct {
	ScanID               uuid.UUID
	Timestamp            time.Time
	Symbol               string
	Strategy             config.StrategyName
	Outcome              DecisionOutcome
	Reason               Reason
	MarketRegime         MarketRegime
	BTCPrice             float64
	Features             features.Features
	SetupData            map[string]float64
	MLConfidence         *float64
	MLPredictions        map[string]float64
	ThresholdsUsed       string
	ProposedPositionSize *float64
	TradeID              *uuid.UUID
}

// NewScanID generates a scan identifier shared by every Decision emitted
// in one tick, so scan_history rows can be grouped by tick.
func NewScanID() uuid.UUID { return uuid.New() }
