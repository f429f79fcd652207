// Package broker simulates fills for the paper trader: entry and exit
// prices adjusted for tier slippage, and fees charged at the tier's
// taker rate. All monetary math uses shopspring/decimal so repeated
// open/close cycles never accumulate floating-point drift in PnL.
package broker

import (
	"github.com/shopspring/decimal"

	"github.com/nitinkhare/cryptopaper/internal/config"
)

// Fill is the result of simulating one side of a trade.
type Fill struct {
	Price  decimal.Decimal
	Fees   decimal.Decimal
	Amount decimal.Decimal // only set for BUY fills
}

// Simulator prices fills from tier-specific slippage and fee rates.
type Simulator struct{}

// NewSimulator constructs a fill simulator.
func NewSimulator() *Simulator { return &Simulator{} }

// Buy computes the entry fill for a notional order: entryPrice =
// referencePrice × (1 + slippage), fees = notional × takerFeeRate,
// amount = (notional − fees) / entryPrice.
func (s *Simulator) Buy(referencePrice, notional float64, tier config.Tier, snapshot *config.Snapshot) Fill {
	ref := decimal.NewFromFloat(referencePrice)
	amt := decimal.NewFromFloat(notional)
	slippage := decimal.NewFromFloat(snapshot.SlippageRates[tier])
	taker := decimal.NewFromFloat(snapshot.Fees.Taker)

	entryPrice := ref.Mul(decimal.NewFromInt(1).Add(slippage))
	fees := amt.Mul(taker)
	filledAmount := decimal.Zero
	if entryPrice.IsPositive() {
		filledAmount = amt.Sub(fees).Div(entryPrice)
	}
	return Fill{Price: entryPrice, Fees: fees, Amount: filledAmount}
}

// Sell computes the exit fill: exitPrice = triggerPrice × (1 −
// slippage), exitFees = (amount × exitPrice) × takerFeeRate.
func (s *Simulator) Sell(triggerPrice float64, amount decimal.Decimal, tier config.Tier, snapshot *config.Snapshot) Fill {
	trigger := decimal.NewFromFloat(triggerPrice)
	slippage := decimal.NewFromFloat(snapshot.SlippageRates[tier])
	taker := decimal.NewFromFloat(snapshot.Fees.Taker)

	exitPrice := trigger.Mul(decimal.NewFromInt(1).Sub(slippage))
	notional := amount.Mul(exitPrice)
	fees := notional.Mul(taker)
	return Fill{Price: exitPrice, Fees: fees}
}

// PnL computes realized profit and loss for a closed position:
// amount × (exitPrice − entryPrice) − exitFees.
func PnL(amount, entryPrice, exitPrice, exitFees decimal.Decimal) decimal.Decimal {
	return amount.Mul(exitPrice.Sub(entryPrice)).Sub(exitFees)
}
