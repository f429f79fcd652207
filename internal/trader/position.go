// Package trader implements the paper-trading position lifecycle:
// opening a position from a TAKE decision, marking and exiting open
// positions on a shorter cadence, and closing them with a linked SELL
// record (PaperTrader, C7).
package trader

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nitinkhare/cryptopaper/internal/config"
)

// Status is a Position's lifecycle state.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
)

// ExitReason enumerates why a position closed.
type ExitReason string

const (
	ExitTakeProfit  ExitReason = "take_profit"
	ExitTrailing    ExitReason = "trailing_stop"
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTimeout     ExitReason = "timeout"
	ExitManual      ExitReason = "manual"
)

// Position is one simulated long position. Invariants: StopLoss <
// EntryPrice < TakeProfit; HighWatermark >= EntryPrice always; once
// Status is StatusClosed the value is never mutated again.
type Position struct {
	TradeGroupID          uuid.UUID
	Symbol                string
	Strategy              config.StrategyName
	Tier                  config.Tier
	EntryPrice            decimal.Decimal
	Amount                decimal.Decimal
	Notional              decimal.Decimal
	OpenedAt              time.Time
	StopLoss              decimal.Decimal
	TakeProfit            decimal.Decimal
	TrailingStopPct       float64
	TrailingActivationPct float64
	HighWatermark         decimal.Decimal
	TimeoutAt             time.Time
	Status                Status
	ScanID                uuid.UUID
}

// ExitRecord is the SELL-side outcome of closing a Position.
type ExitRecord struct {
	ExitPrice     decimal.Decimal
	PnL           decimal.Decimal
	ExitFees      decimal.Decimal
	ExitReason    ExitReason
	HoldTimeHours float64
	ClosedAt      time.Time
}

// inProfit reports whether the position's watermark has cleared the
// trailing-activation threshold above entry.
func (p *Position) inProfit() bool {
	activationPrice := p.EntryPrice.Mul(decimal.NewFromFloat(1 + p.TrailingActivationPct))
	return p.HighWatermark.GreaterThan(activationPrice)
}
